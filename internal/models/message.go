package models

// TimestampFormat is the ISO-8601 layout used for message timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Message represents a chat message held in the global room.
type Message struct {
	ID        string `json:"id"` // ULID
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"` // ISO-8601, UTC
}
