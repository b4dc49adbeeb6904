package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/counsel-scripture-api/internal/models"
)

// EventLogger appends structured telemetry events to a JSONL file.
// Writes are fire-and-forget: logging failures never affect a turn.
// Conversation ids are hashed with a salt before they touch disk.
type EventLogger struct {
	path string
	salt string
	mu   sync.Mutex
}

// NewEventLogger creates an event logger writing to path
func NewEventLogger(path, salt string) *EventLogger {
	return &EventLogger{path: path, salt: salt}
}

// HashID returns the salted hash used in place of raw identifiers
func (l *EventLogger) HashID(value string) string {
	sum := sha256.Sum256([]byte(l.salt + value))
	return hex.EncodeToString(sum[:])
}

// Log appends one event. The payload map is copied; a conversation_id field
// is replaced by its hash.
func (l *EventLogger) Log(eventType string, payload map[string]interface{}) {
	record := map[string]interface{}{
		"event_type": eventType,
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range payload {
		record[k] = v
	}
	if id, ok := record["conversation_id"].(string); ok && id != "" {
		record["conversation_id"] = l.HashID(id)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}

// LogVerseCited records one verse_cited event per citation
func (l *EventLogger) LogVerseCited(conversationID string, citations []models.Citation) {
	for _, c := range citations {
		l.Log("verse_cited", map[string]interface{}{
			"conversation_id": conversationID,
			"version_id":      c.VersionID,
			"book_id":         c.BookID,
			"chapter":         c.Chapter,
			"verse_start":     c.VerseStart,
			"verse_end":       c.VerseEnd,
		})
	}
}
