package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceRef points at a backend document that supported an answer.
// Values are displayed exactly as the backend supplied them.
type SourceRef struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
}

// Turn represents a single message in the conversation.
type Turn struct {
	Role        Role              `json:"role"`
	Text        string            `json:"text"`
	Timestamp   time.Time         `json:"timestamp"`
	Sources     []SourceRef       `json:"sources,omitempty"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
}

// Session represents one process run's worth of client identity.
// The ID never changes after creation.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
}

// New creates a session with a collision-resistant identity.
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
	}
}
