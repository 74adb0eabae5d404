// Package events defines event types and enumerations for the Starbridge event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle events
	EventConnectionOpened EventType = "connection_opened"
	EventConnectionClosed EventType = "connection_closed"
	EventPlayerIdentified EventType = "player_identified"

	// Traffic events
	EventChatMessage EventType = "chat_message"
	EventFrameVetoed EventType = "frame_vetoed"

	// Notification events
	EventProxyStatus EventType = "proxy_status"
	EventNotifyMQTT  EventType = "notify_mqtt"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ConnectionPayload accompanies connection_opened and connection_closed.
type ConnectionPayload struct {
	ConnID     uint64
	RemoteAddr string
	PlayerName string
	State      string
	Opened     time.Time
}

// PlayerIdentifiedPayload is emitted once a client_connect frame reveals
// the player behind a connection.
type PlayerIdentifiedPayload struct {
	ConnID     uint64
	PlayerName string
	UUID       string
}

// ChatMessagePayload carries one chat line observed by the pipeline.
type ChatMessagePayload struct {
	ConnID     uint64
	PlayerName string
	Message    string
	SendMode   byte
	Vetoed     bool
}

// FrameVetoedPayload is emitted when the dispatch pipeline drops a frame.
type FrameVetoedPayload struct {
	ConnID     uint64
	PacketName string
	Direction  string
}

// ProxyStatusPayload is the periodic status snapshot published over
// telemetry and exposed by the API.
type ProxyStatusPayload struct {
	Connections   int            `json:"connections"`
	Players       []string       `json:"players"`
	CacheEntries  int            `json:"cache_entries"`
	CacheHits     uint64         `json:"cache_hits"`
	CacheMisses   uint64         `json:"cache_misses"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	System        map[string]any `json:"system,omitempty"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
