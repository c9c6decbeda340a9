package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TemplateID identifies a catalog template.
type TemplateID string

// NewTemplateID generates a random template identifier.
func NewTemplateID() TemplateID {
	return TemplateID(uuid.NewString())
}

// Template is a reusable automation blueprint stored in the catalog.
// JSONContent holds the raw workflow definition as exported by the
// automation server (nodes, connections, settings).
type Template struct {
	ID          TemplateID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Complexity  string     `json:"complexity"`
	JSONContent string     `json:"json_content,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	Author      string     `json:"author,omitempty"`
	Tags        []string   `json:"tags"`
	NodesUsed   []string   `json:"nodes_used"`

	IsActive      bool      `json:"is_active"`
	DownloadCount int       `json:"download_count"`
	Rating        float64   `json:"rating"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TemplateFilter narrows catalog searches. Empty fields match everything.
type TemplateFilter struct {
	Query      string
	Category   string
	Complexity string
	Limit      int
}

// CategoryCount is one category's share of the catalog.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
)
