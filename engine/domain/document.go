// Package domain defines the core Document type, its error taxonomy, and
// the validation gate for the relational CRUD surface (engine/store) and
// the HTTP document API (cmd/update-service).
package domain

import "time"

// Document is the authoritative representation of a piece of content. The
// vector index is derived state projected from this row by the update
// pipeline; Document itself is never read back from the vector store.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentList is the paginated response for the document list endpoint.
type DocumentList struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

const (
	// MinTitleLen and MaxTitleLen bound Document.Title per the create/update contract.
	MinTitleLen = 1
	MaxTitleLen = 500
)
