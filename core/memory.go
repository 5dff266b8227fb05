package core

import "time"

// MemoryRecord is an immutable fact stored under a namespace. Score is only
// populated by similarity searches.
type MemoryRecord struct {
	ID        string    `json:"id"`
	Namespace Namespace `json:"namespace"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score,omitempty"`
}
