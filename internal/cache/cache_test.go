package cache

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starbridge-project/starbridge/internal/protocol"
)

// countingDecoder wraps protocol.Decode with a call counter.
func countingDecoder(calls *atomic.Int64) DecodeFunc {
	return func(typeID uint8, payload []byte) (map[string]any, error) {
		calls.Add(1)
		return protocol.Decode(typeID, payload)
	}
}

func chatFrame(t *testing.T, message string) *protocol.Frame {
	t.Helper()
	wire, err := protocol.BuildChatSent(message, 0)
	if err != nil {
		t.Fatalf("BuildChatSent: %v", err)
	}
	f, err := protocol.ReadFrame(bytes.NewReader(wire), protocol.ToServer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return f
}

func TestDecodeBypassesCacheForSmallPayloads(t *testing.T) {
	var calls atomic.Int64
	c := New(1024, time.Minute, countingDecoder(&calls))

	f := chatFrame(t, "small")
	c.Decode(f)
	c.Decode(chatFrame(t, "small"))

	if got := calls.Load(); got != 2 {
		t.Errorf("decoder calls = %d, want 2 (no sharing below threshold)", got)
	}
	stats := c.Snapshot()
	if stats.Entries != 0 {
		t.Errorf("entries = %d, want 0", stats.Entries)
	}
	if stats.Bypassed != 2 {
		t.Errorf("bypassed = %d, want 2", stats.Bypassed)
	}
}

func TestDecodeCachesLargePayloads(t *testing.T) {
	var calls atomic.Int64
	c := New(1, time.Minute, countingDecoder(&calls))

	message := "a recurring broadcast message sent to every connection"
	first := chatFrame(t, message)
	second := chatFrame(t, message)

	c.Decode(first)
	c.Decode(second)

	if got := calls.Load(); got != 1 {
		t.Errorf("decoder calls = %d, want 1 (second decode served from cache)", got)
	}
	if first.Decoded["message"] != message || second.Decoded["message"] != message {
		t.Error("decoded bodies not populated")
	}
	if rc := c.RefCount(first.Raw); rc != 2 {
		t.Errorf("refCount = %d, want 2", rc)
	}
	// Raw bytes still belong to each frame.
	if &first.Raw[0] == &second.Raw[0] {
		t.Error("frames must not share raw byte storage")
	}
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	var calls atomic.Int64
	c := New(1, time.Minute, countingDecoder(&calls))

	f := chatFrame(t, "seen once, then never again")
	c.Decode(f)
	if rc := c.RefCount(f.Raw); rc != 1 {
		t.Fatalf("refCount after insert = %d, want 1", rc)
	}

	c.sweep()
	if rc := c.RefCount(f.Raw); rc != 0 {
		t.Fatalf("entry should be evicted after one idle sweep, refCount = %d", rc)
	}

	stats := c.Snapshot()
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}

	// A fresh decode after eviction hits the decoder again.
	c.Decode(chatFrame(t, "seen once, then never again"))
	if got := calls.Load(); got != 2 {
		t.Errorf("decoder calls = %d, want 2", got)
	}
}

func TestSweepDecaysHotEntriesGradually(t *testing.T) {
	var calls atomic.Int64
	c := New(1, time.Minute, countingDecoder(&calls))

	msg := "hot payload"
	c.Decode(chatFrame(t, msg))
	c.Decode(chatFrame(t, msg))
	raw := chatFrame(t, msg).Raw

	if rc := c.RefCount(raw); rc != 2 {
		t.Fatalf("refCount = %d, want 2", rc)
	}
	c.sweep()
	if rc := c.RefCount(raw); rc != 1 {
		t.Fatalf("refCount after first sweep = %d, want 1", rc)
	}
	c.sweep()
	if rc := c.RefCount(raw); rc != 0 {
		t.Fatalf("entry should be gone after two idle sweeps, refCount = %d", rc)
	}
}

func TestDecodeFailureIsNotCached(t *testing.T) {
	var calls atomic.Int64
	c := New(1, time.Minute, countingDecoder(&calls))

	// chat_sent payload whose string length points past the end.
	bad, err := protocol.BuildFrame(protocol.PktChatSent, []byte{0x7f}, false)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	f, err := protocol.ReadFrame(bytes.NewReader(bad), protocol.ToServer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	c.Decode(f)
	if f.Decoded == nil || len(f.Decoded) != 0 {
		t.Errorf("malformed payload should decode to an empty body, got %v", f.Decoded)
	}
	if rc := c.RefCount(f.Raw); rc != 0 {
		t.Errorf("failed decode must not be cached, refCount = %d", rc)
	}
}

func TestStartReaperRunsUntilCancelled(t *testing.T) {
	var calls atomic.Int64
	c := New(1, time.Millisecond, countingDecoder(&calls))

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		c.StartReaper(ctx)
		close(returned)
	}()

	// The reaper loops on its ticker; it must not return on its own.
	select {
	case <-returned:
		t.Fatal("StartReaper returned without cancellation")
	case <-time.After(30 * time.Millisecond):
	}

	cancel()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("StartReaper did not return after cancellation")
	}
}

func TestConcurrentDecodeAndSweep(t *testing.T) {
	var calls atomic.Int64
	c := New(1, time.Minute, countingDecoder(&calls))

	wire, err := protocol.BuildChatSent("shared broadcast payload", 0)
	if err != nil {
		t.Fatalf("BuildChatSent: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				f, err := protocol.ReadFrame(bytes.NewReader(wire), protocol.ToServer)
				if err != nil {
					t.Error(err)
					return
				}
				c.Decode(f)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			c.sweep()
		}
	}()
	wg.Wait()

	// Convergence: subsequent lookups share one entry.
	c.Decode(chatFrame(t, "shared broadcast payload"))
	if rc := c.RefCount(chatFrame(t, "shared broadcast payload").Raw); rc < 1 {
		t.Errorf("expected a live cache entry after concurrent churn, refCount = %d", rc)
	}
}
