package models

// PostData represents a single post found by a tgstat search
type PostData struct {
	// Source channel
	SourceTitle string
	SourceURL   string
	// Subscriber lookup is disabled, the value is always 0
	SourceSubscribersCount int

	// Post
	PostURL         string
	PublicationDate string // Raw display text, e.g. "12 мар 2024, 14:05"
	ViewsCount      string
	RepostsCount    string
}
