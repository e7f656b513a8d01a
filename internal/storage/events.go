package storage

import "time"

// EventWriter is the interface for recording lookup events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *LookupEvent)
	Close()
}

// LookupEvent is one /api/list-info outcome. It is an audit record only and
// is never read back by the resolver.
type LookupEvent struct {
	RequestID    string
	Timestamp    time.Time
	URI          string // truncated to URIPreviewLength
	RecordKey    string
	Outcome      string // "ok" or an error code
	CreatorDID   string
	ItemCount    int64
	HasLastAdded bool
	LatencyMs    float32
	UserAgent    string // truncated to URIPreviewLength
}

// URIPreviewLength is the max chars stored for caller-supplied strings.
const URIPreviewLength = 512

// Truncate returns the first maxLen runes of s. It never splits a multi-byte
// UTF-8 character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
