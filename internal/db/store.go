package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Store manages chat history and player mutes on top of the SQLite layer.
type Store struct {
	db *Database
}

// ChatEntry is one persisted chat line.
type ChatEntry struct {
	ID         int       `json:"id"`
	ConnID     uint64    `json:"conn_id"`
	PlayerName string    `json:"player_name"`
	Message    string    `json:"message"`
	SendMode   int       `json:"send_mode"`
	Vetoed     bool      `json:"vetoed"`
	CreatedAt  time.Time `json:"created_at"`
}

// MuteEntry is one active player mute.
type MuteEntry struct {
	PlayerName string    `json:"player_name"`
	MutedBy    string    `json:"muted_by"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewStore opens the store at the given path and migrates its schema.
func NewStore(dbPath string) (*Store, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: database}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conn_id INTEGER NOT NULL,
			player_name TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			send_mode INTEGER NOT NULL DEFAULT 0,
			vetoed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS mutes (
			player_name TEXT PRIMARY KEY,
			muted_by TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_chat_log_player ON chat_log(player_name);
		CREATE INDEX IF NOT EXISTS idx_chat_log_created ON chat_log(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("database schema migrated")
	return nil
}

// LogChat persists one chat line.
func (s *Store) LogChat(connID uint64, playerName, message string, sendMode int, vetoed bool) error {
	_, err := s.db.Exec(
		"INSERT INTO chat_log (conn_id, player_name, message, send_mode, vetoed) VALUES (?, ?, ?, ?, ?)",
		connID, playerName, message, sendMode, boolToInt(vetoed))
	if err != nil {
		return fmt.Errorf("failed to log chat: %w", err)
	}
	return nil
}

// RecentChat returns the most recent chat lines, newest first.
func (s *Store) RecentChat(limit int) ([]ChatEntry, error) {
	rows, err := s.db.Query(
		"SELECT id, conn_id, player_name, message, send_mode, vetoed, created_at FROM chat_log ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ChatEntry
	for rows.Next() {
		var e ChatEntry
		var vetoed int
		if err := rows.Scan(&e.ID, &e.ConnID, &e.PlayerName, &e.Message, &e.SendMode, &vetoed, &e.CreatedAt); err != nil {
			continue
		}
		e.Vetoed = vetoed != 0
		entries = append(entries, e)
	}
	return entries, nil
}

// PlayerChat returns the most recent chat lines of one player, newest first.
func (s *Store) PlayerChat(playerName string, limit int) ([]ChatEntry, error) {
	rows, err := s.db.Query(
		"SELECT id, conn_id, player_name, message, send_mode, vetoed, created_at FROM chat_log WHERE player_name = ? ORDER BY id DESC LIMIT ?",
		playerName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ChatEntry
	for rows.Next() {
		var e ChatEntry
		var vetoed int
		if err := rows.Scan(&e.ID, &e.ConnID, &e.PlayerName, &e.Message, &e.SendMode, &vetoed, &e.CreatedAt); err != nil {
			continue
		}
		e.Vetoed = vetoed != 0
		entries = append(entries, e)
	}
	return entries, nil
}

// PruneChatLog removes chat lines older than the given number of days and
// returns how many were deleted.
func (s *Store) PruneChatLog(days int) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM chat_log WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("failed to prune chat log: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// Mute records a player mute. Re-muting an already muted player updates
// the reason and the muting actor.
func (s *Store) Mute(playerName, mutedBy, reason string) error {
	return s.db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO mutes (player_name, muted_by, reason) VALUES (?, ?, ?)
			ON CONFLICT(player_name) DO UPDATE SET muted_by = excluded.muted_by, reason = excluded.reason
		`, playerName, mutedBy, reason)
		if err != nil {
			return fmt.Errorf("failed to mute %s: %w", playerName, err)
		}

		log.Info().
			Str("player", playerName).
			Str("muted_by", mutedBy).
			Str("reason", reason).
			Msg("player muted")
		return nil
	})
}

// Unmute lifts a player's mute. Unmuting a player who was not muted is not
// an error.
func (s *Store) Unmute(playerName string) error {
	_, err := s.db.Exec("DELETE FROM mutes WHERE player_name = ?", playerName)
	return err
}

// IsMuted reports whether the player is currently muted.
func (s *Store) IsMuted(playerName string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM mutes WHERE player_name = ?", playerName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("mute check failed: %w", err)
	}
	return count > 0, nil
}

// Mutes returns all active mutes.
func (s *Store) Mutes() ([]MuteEntry, error) {
	rows, err := s.db.Query("SELECT player_name, muted_by, reason, created_at FROM mutes ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mutes []MuteEntry
	for rows.Next() {
		var m MuteEntry
		if err := rows.Scan(&m.PlayerName, &m.MutedBy, &m.Reason, &m.CreatedAt); err != nil {
			continue
		}
		mutes = append(mutes, m)
	}
	return mutes, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
