package scraper

import (
	"fmt"
	"strings"

	"tgstat-bot/models"

	"go.uber.org/zap"
)

// Extractor turns result containers into PostData records.
type Extractor struct {
	sel Selectors
	log *zap.Logger
}

// NewExtractor creates an Extractor
func NewExtractor(sel Selectors, log *zap.Logger) *Extractor {
	return &Extractor{sel: sel, log: log}
}

// ExtractAll extracts every post container under root, in document order.
// Malformed containers are logged and skipped. The error is only set when
// the containers themselves cannot be listed.
func (x *Extractor) ExtractAll(root Node) ([]models.PostData, error) {
	containers, err := root.FindAll(x.sel.PostList)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	posts := make([]models.PostData, 0, len(containers))
	for i, container := range containers {
		post, err := x.Extract(i, container)
		if err != nil {
			x.log.Error("Failed to extract post", zap.Int("index", i), zap.Error(err))
			continue
		}
		posts = append(posts, post)
	}

	x.log.Info("Extracted posts", zap.Int("found", len(containers)), zap.Int("parsed", len(posts)))
	return posts, nil
}

// Extract builds a single record from a post container.
func (x *Extractor) Extract(index int, container Node) (post models.PostData, err error) {
	// Backends may panic on detached nodes; that must only cost this post.
	defer func() {
		if r := recover(); r != nil {
			err = &ExtractionError{Index: index, Field: "container", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	fail := func(field string, err error) (models.PostData, error) {
		return models.PostData{}, &ExtractionError{Index: index, Field: field, Err: err}
	}

	title, err := container.Find(x.sel.Title)
	if err != nil {
		return fail("title", err)
	}
	sourceTitle, err := title.Text()
	if err != nil {
		return fail("title", err)
	}
	channelLink, err := title.Property("href")
	if err != nil {
		return fail("title link", err)
	}
	sourceURL, err := NormalizeSourceURL(channelLink)
	if err != nil {
		return fail("title link", err)
	}

	date, err := x.text(container, x.sel.Date)
	if err != nil {
		return fail("date", err)
	}
	views, err := x.text(container, x.sel.Views)
	if err != nil {
		return fail("views", err)
	}
	reposts, err := x.text(container, x.sel.Reposts)
	if err != nil {
		return fail("reposts", err)
	}

	link, err := container.Find(x.sel.PostLink)
	if err != nil {
		return fail("post link", err)
	}
	href, err := link.Property("href")
	if err != nil {
		return fail("post link", err)
	}
	postURL, err := BuildPostURL(sourceURL, href)
	if err != nil {
		return fail("post link", err)
	}

	return models.PostData{
		SourceTitle:            strings.TrimSpace(sourceTitle),
		SourceURL:              sourceURL,
		SourceSubscribersCount: 0,
		PostURL:                postURL,
		PublicationDate:        date,
		ViewsCount:             strings.TrimSpace(views),
		RepostsCount:           strings.TrimSpace(reposts),
	}, nil
}

func (x *Extractor) text(container Node, selector string) (string, error) {
	node, err := container.Find(selector)
	if err != nil {
		return "", err
	}
	return node.Text()
}
