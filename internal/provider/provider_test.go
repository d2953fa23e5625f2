package provider

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestRPCError_Codes(t *testing.T) {
	rejected := fmt.Errorf("connect: %w", &RPCError{Code: CodeUserRejected, Message: "User rejected the request."})
	unknown := &RPCError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}

	if !IsUserRejected(rejected) {
		t.Error("IsUserRejected() = false, want true")
	}
	if IsUserRejected(unknown) {
		t.Error("IsUserRejected(4902) = true, want false")
	}
	if !IsUnrecognizedChain(unknown) {
		t.Error("IsUnrecognizedChain() = false, want true")
	}
	if _, ok := ErrorCodeOf(fmt.Errorf("plain")); ok {
		t.Error("ErrorCodeOf(plain) should report no code")
	}
}

func TestEmitter_SubscribeEmit(t *testing.T) {
	e := NewEmitter()
	var calls atomic.Int32
	var last json.RawMessage

	sub := e.Subscribe(EventChainChanged, func(p json.RawMessage) {
		calls.Add(1)
		last = p
	})
	e.Subscribe(EventAccountsChanged, func(json.RawMessage) {
		t.Error("accountsChanged handler should not run")
	})

	e.Emit(EventChainChanged, json.RawMessage(`"0x2328"`))
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if string(last) != `"0x2328"` {
		t.Errorf("payload = %s, want \"0x2328\"", last)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	e.Emit(EventChainChanged, json.RawMessage(`"0x1"`))
	if calls.Load() != 1 {
		t.Errorf("calls after unsubscribe = %d, want 1", calls.Load())
	}
	if n := e.Count(EventChainChanged); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestEmitter_UnsubscribeFromHandler(t *testing.T) {
	e := NewEmitter()
	var sub Subscription
	sub = e.Subscribe(EventAccountsChanged, func(json.RawMessage) {
		sub.Unsubscribe()
	})

	e.Emit(EventAccountsChanged, json.RawMessage(`[]`))
	if n := e.Count(EventAccountsChanged); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}
