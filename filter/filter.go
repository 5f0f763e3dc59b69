package filter

import (
	"tgstat-bot/models"
)

// Filter prepares search results for display
type Filter struct {
	maxResults int
}

// NewFilter creates a Filter keeping at most maxResults posts
func NewFilter(maxResults int) *Filter {
	return &Filter{
		maxResults: maxResults,
	}
}

// Apply drops repeated posts (same PostURL, first one wins) and truncates
// the list to maxResults. Order is preserved.
func (f *Filter) Apply(posts []models.PostData) []models.PostData {
	seen := make(map[string]bool, len(posts))
	var filtered []models.PostData

	for _, post := range posts {
		if f.maxResults > 0 && len(filtered) >= f.maxResults {
			break
		}
		if seen[post.PostURL] {
			continue
		}
		seen[post.PostURL] = true
		filtered = append(filtered, post)
	}

	return filtered
}
