package feed

import (
	"time"
)

// SummaryLimit bounds Item.Summary, in runes.
const SummaryLimit = 300

// Item is one normalized entry served to clients, whatever provider produced it.
type Item struct {
	ID          string    `json:"id"` // "<provider>:<local id>"
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Read        bool      `json:"read"`
	Tags        []string  `json:"tags"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	ProviderID  string    `json:"providerId"`
}

// Feed document types

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

type Entry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	Author      string
	PublishedAt time.Time // parse time when the document carries no date
	Categories  []string
	ImageURL    string
}
