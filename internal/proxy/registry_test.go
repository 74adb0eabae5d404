package proxy

import (
	"testing"
	"time"
)

func TestRegistryTracksLifecycle(t *testing.T) {
	reg := NewRegistry()
	pipeline := testPipeline(t)

	s := startSession(t, pipeline)
	reg.Add(s.conn)

	if reg.Count() != 1 {
		t.Fatalf("Count = %d, want 1", reg.Count())
	}
	if reg.Get(s.conn.ID()) != s.conn {
		t.Error("Get did not return the registered connection")
	}

	s.conn.SetPlayerName("korben")
	if reg.FindByPlayer("korben") != s.conn {
		t.Error("FindByPlayer missed an identified player")
	}
	if reg.FindByPlayer("nobody") != nil {
		t.Error("FindByPlayer matched an unknown name")
	}
	players := reg.Players()
	if len(players) != 1 || players[0] != "korben" {
		t.Errorf("Players = %v, want [korben]", players)
	}

	// Teardown must remove the connection from the registry.
	s.conn.Die()
	<-s.done
	deadline := time.Now().Add(2 * time.Second)
	for reg.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection not removed after teardown")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRegistryNextIDMonotonic(t *testing.T) {
	reg := NewRegistry()
	a, b, c := reg.NextID(), reg.NextID(), reg.NextID()
	if !(a < b && b < c) {
		t.Errorf("ids not monotonic: %d %d %d", a, b, c)
	}
}

func TestRegistryShutdownClosesAll(t *testing.T) {
	reg := NewRegistry()
	pipeline := testPipeline(t)

	sessions := []*session{startSession(t, pipeline), startSession(t, pipeline)}
	for _, s := range sessions {
		reg.Add(s.conn)
		// Drain the farewell frame so the graceful close is not stalled on
		// an unread pipe.
		go func(s *session) {
			buf := make([]byte, 256)
			s.client.Read(buf)
		}(s)
	}

	reg.Shutdown("maintenance")

	for _, s := range sessions {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatal("session survived registry shutdown")
		}
		if s.conn.Alive() {
			t.Error("connection alive after shutdown")
		}
	}
}
