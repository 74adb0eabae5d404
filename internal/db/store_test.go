package db

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChatLogRoundtrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.LogChat(1, "korben", "hello world", 0, false); err != nil {
		t.Fatalf("LogChat: %v", err)
	}
	if err := s.LogChat(1, "korben", "spam spam", 0, true); err != nil {
		t.Fatalf("LogChat: %v", err)
	}
	if err := s.LogChat(2, "leeloo", "multipass", 1, false); err != nil {
		t.Fatalf("LogChat: %v", err)
	}

	entries, err := s.RecentChat(10)
	if err != nil {
		t.Fatalf("RecentChat: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("RecentChat returned %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].PlayerName != "leeloo" || entries[0].SendMode != 1 {
		t.Errorf("newest entry = %+v", entries[0])
	}
	if !entries[1].Vetoed {
		t.Error("vetoed flag not persisted")
	}

	mine, err := s.PlayerChat("korben", 10)
	if err != nil {
		t.Fatalf("PlayerChat: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("PlayerChat returned %d entries, want 2", len(mine))
	}
}

func TestRecentChatHonorsLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if err := s.LogChat(1, "korben", "line", 0, false); err != nil {
			t.Fatalf("LogChat: %v", err)
		}
	}
	entries, err := s.RecentChat(2)
	if err != nil {
		t.Fatalf("RecentChat: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("RecentChat returned %d entries, want 2", len(entries))
	}
}

func TestMuteLifecycle(t *testing.T) {
	s := openTestStore(t)

	muted, err := s.IsMuted("korben")
	if err != nil {
		t.Fatalf("IsMuted: %v", err)
	}
	if muted {
		t.Error("fresh store should have no mutes")
	}

	if err := s.Mute("korben", "admin", "flooding"); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if muted, _ = s.IsMuted("korben"); !muted {
		t.Error("player should be muted")
	}

	// Re-muting updates the record instead of failing.
	if err := s.Mute("korben", "operator", "still flooding"); err != nil {
		t.Fatalf("re-Mute: %v", err)
	}
	mutes, err := s.Mutes()
	if err != nil {
		t.Fatalf("Mutes: %v", err)
	}
	if len(mutes) != 1 {
		t.Fatalf("Mutes returned %d entries, want 1", len(mutes))
	}
	if mutes[0].MutedBy != "operator" || mutes[0].Reason != "still flooding" {
		t.Errorf("mute not updated: %+v", mutes[0])
	}

	if err := s.Unmute("korben"); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if muted, _ = s.IsMuted("korben"); muted {
		t.Error("player should be unmuted")
	}

	// Unmuting an unknown player is a no-op.
	if err := s.Unmute("nobody"); err != nil {
		t.Errorf("Unmute unknown player: %v", err)
	}
}

func TestPruneChatLogKeepsRecentLines(t *testing.T) {
	s := openTestStore(t)
	if err := s.LogChat(1, "korben", "fresh line", 0, false); err != nil {
		t.Fatalf("LogChat: %v", err)
	}

	deleted, err := s.PruneChatLog(7)
	if err != nil {
		t.Fatalf("PruneChatLog: %v", err)
	}
	if deleted != 0 {
		t.Errorf("pruned %d fresh lines, want 0", deleted)
	}

	entries, err := s.RecentChat(10)
	if err != nil {
		t.Fatalf("RecentChat: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("fresh line was pruned")
	}
}
