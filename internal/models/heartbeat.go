package models

// Heartbeat records the last presence signal of a client session.
type Heartbeat struct {
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"` // Unix ms
}
