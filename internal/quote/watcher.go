package quote

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Update is one published quote state. Quote is nil when no quote should
// be shown, either because the inputs are incomplete or because Err is set.
type Update struct {
	Request Request
	Quote   *Quote
	Err     error
}

// WatcherConfig controls re-quote pacing
type WatcherConfig struct {
	Debounce        time.Duration // quiet period after an input change
	RefreshInterval time.Duration // periodic re-quote of unchanged inputs, 0 disables
}

// Watcher re-quotes the current inputs after they settle and periodically
// afterwards. Quoting runs on the watcher's own goroutine, one at a time;
// a result for inputs that changed meanwhile is dropped.
type Watcher struct {
	engine  *Engine
	cfg     WatcherConfig
	publish func(Update)
	logger  *slog.Logger

	mu      sync.Mutex
	current Request
	gen     uint64
	signal  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher that reports through publish
func NewWatcher(engine *Engine, cfg WatcherConfig, publish func(Update), logger *slog.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		engine:  engine,
		cfg:     cfg,
		publish: publish,
		logger:  logger.With("component", "QuoteWatcher"),
		signal:  make(chan struct{}, 1),
	}
}

// Start starts the watch loop
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("Quote watcher started",
		"debounce", w.cfg.Debounce,
		"refreshInterval", w.cfg.RefreshInterval)
}

// Stop stops the loop and waits for an in-flight quote to finish
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.engine.Invalidate()
	w.logger.Info("Quote watcher stopped")
}

// Update replaces the inputs being watched
func (w *Watcher) Update(req Request) {
	w.mu.Lock()
	w.current = req
	w.gen++
	w.mu.Unlock()

	// inputs changed, so whatever is in flight is stale
	w.engine.Invalidate()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Watcher) snapshot() (Request, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.gen
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var refresh <-chan time.Time
	if w.cfg.RefreshInterval > 0 {
		ticker := time.NewTicker(w.cfg.RefreshInterval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	debounce := time.NewTimer(w.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.signal:
			if pending && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(w.cfg.Debounce)
			pending = true
		case <-debounce.C:
			pending = false
			w.requote()
		case <-refresh:
			if !pending {
				w.requote()
			}
		}
	}
}

func (w *Watcher) requote() {
	req, gen := w.snapshot()
	if !req.Ready() {
		if gen > 0 {
			w.emit(gen, Update{Request: req})
		}
		return
	}

	q, err := w.engine.GetQuote(w.ctx, req)
	if errors.Is(err, ErrSuperseded) || w.ctx.Err() != nil {
		return
	}
	if err != nil {
		w.logger.Warn("Quote failed", "from", req.From.Symbol, "to", req.To.Symbol, "error", err)
	}
	w.emit(gen, Update{Request: req, Quote: q, Err: err})
}

// emit publishes u unless the inputs changed after gen
func (w *Watcher) emit(gen uint64, u Update) {
	if _, cur := w.snapshot(); cur != gen {
		return
	}
	if w.publish != nil {
		w.publish(u)
	}
}
