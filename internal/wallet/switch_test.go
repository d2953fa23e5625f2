package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
)

// scriptedSwitcher answers switch requests from a per-chain table
type scriptedSwitcher struct {
	switchErr map[uint64]error
	addErr    map[uint64]error
	switches  []uint64
	adds      []uint64
}

func (s *scriptedSwitcher) SwitchChain(_ context.Context, d network.Descriptor) error {
	s.switches = append(s.switches, d.ChainID)
	return s.switchErr[d.ChainID]
}

func (s *scriptedSwitcher) AddChain(_ context.Context, d network.Descriptor) error {
	s.adds = append(s.adds, d.ChainID)
	return s.addErr[d.ChainID]
}

func descriptors(ids ...uint64) []network.Descriptor {
	out := make([]network.Descriptor, len(ids))
	for i, id := range ids {
		out[i] = network.Descriptor{ChainID: id, DisplayName: "chain"}
	}
	return out
}

var errUnrecognized = &provider.RPCError{Code: provider.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}

func TestSwitchPreferred(t *testing.T) {
	tests := []struct {
		name         string
		switchErr    map[uint64]error
		addErr       map[uint64]error
		wantSelected uint64
		wantAttempts int
		wantAdded    bool
		wantAdds     []uint64
		wantErr      bool
	}{
		{
			name:         "first candidate accepted",
			wantSelected: 1,
			wantAttempts: 1,
		},
		{
			name:         "first fails, second accepted",
			switchErr:    map[uint64]error{1: errors.New("boom")},
			wantSelected: 2,
			wantAttempts: 2,
		},
		{
			name:         "unrecognized chain is added",
			switchErr:    map[uint64]error{1: errUnrecognized},
			wantSelected: 1,
			wantAttempts: 1,
			wantAdded:    true,
			wantAdds:     []uint64{1},
		},
		{
			name:         "failed add moves on",
			switchErr:    map[uint64]error{1: errUnrecognized},
			addErr:       map[uint64]error{1: errors.New("add refused")},
			wantSelected: 2,
			wantAttempts: 2,
			wantAdds:     []uint64{1},
		},
		{
			name: "all fail",
			switchErr: map[uint64]error{
				1: errors.New("a"),
				2: errors.New("b"),
				3: errors.New("c"),
			},
			wantAttempts: 3,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSwitcher{switchErr: tt.switchErr, addErr: tt.addErr}
			report, err := SwitchPreferred(context.Background(), s, descriptors(1, 2, 3))

			if tt.wantErr {
				if !errors.Is(err, apperr.ErrNetworkSwitchFailed) {
					t.Fatalf("error = %v, want ErrNetworkSwitchFailed", err)
				}
			} else if err != nil {
				t.Fatalf("SwitchPreferred() failed: %v", err)
			}
			if report.Selected != tt.wantSelected {
				t.Errorf("Selected = %d, want %d", report.Selected, tt.wantSelected)
			}
			if report.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", report.Attempts, tt.wantAttempts)
			}
			if len(s.switches) != tt.wantAttempts {
				t.Errorf("switch requests = %v, want %d", s.switches, tt.wantAttempts)
			}
			if report.Added != tt.wantAdded {
				t.Errorf("Added = %v, want %v", report.Added, tt.wantAdded)
			}
			if len(s.adds) != len(tt.wantAdds) {
				t.Errorf("adds = %v, want %v", s.adds, tt.wantAdds)
			}
			if len(report.Candidates) != 3 {
				t.Errorf("Candidates = %v, want 3 entries", report.Candidates)
			}
		})
	}
}

func TestSwitchPreferred_NoCandidates(t *testing.T) {
	_, err := SwitchPreferred(context.Background(), &scriptedSwitcher{}, nil)
	if !errors.Is(err, apperr.ErrNetworkSwitchFailed) {
		t.Errorf("error = %v, want ErrNetworkSwitchFailed", err)
	}
}

func TestSwitchPreferred_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &scriptedSwitcher{}
	_, err := SwitchPreferred(ctx, s, descriptors(1, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(s.switches) != 0 {
		t.Errorf("switch requests = %v, want none", s.switches)
	}
}
