package scraper

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestExtractWellFormedPost(t *testing.T) {
	sel := DefaultSelectors()
	x := NewExtractor(sel, zap.NewNop())

	post, err := x.Extract(0, postNode(sel, "@knopka", "98765"))
	require.NoError(t, err)

	assert.Equal(t, "Кнопка @knopka", post.SourceTitle)
	assert.Equal(t, "https://t.me/knopka", post.SourceURL)
	assert.Equal(t, "https://t.me/knopka/98765", post.PostURL)
	assert.Equal(t, "12 мар 2024, 14:05", post.PublicationDate)
	assert.Equal(t, "12.4k", post.ViewsCount)
	assert.Equal(t, "31", post.RepostsCount)
	assert.Zero(t, post.SourceSubscribersCount)
}

func TestExtractPrivateChannel(t *testing.T) {
	sel := DefaultSelectors()
	x := NewExtractor(sel, zap.NewNop())

	post, err := x.Extract(0, postNode(sel, "AbCdEfG123", "17"))
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+AbCdEfG123", post.SourceURL)
	assert.Equal(t, "https://t.me/+AbCdEfG123/17", post.PostURL)
}

func TestExtractMissingFields(t *testing.T) {
	sel := DefaultSelectors()

	tests := []struct {
		name     string
		selector string
		field    string
	}{
		{"no title", sel.Title, "title"},
		{"no date", sel.Date, "date"},
		{"no views", sel.Views, "views"},
		{"no reposts", sel.Reposts, "reposts"},
		{"no post link", sel.PostLink, "post link"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := postNode(sel, "@knopka", "1")
			delete(node.children, tt.selector)

			_, err := NewExtractor(sel, zap.NewNop()).Extract(4, node)
			require.Error(t, err)

			var extractErr *ExtractionError
			require.True(t, errors.As(err, &extractErr))
			assert.Equal(t, 4, extractErr.Index)
			assert.Equal(t, tt.field, extractErr.Field)
			assert.ErrorIs(t, err, ErrElementNotFound)
		})
	}
}

func TestExtractTitleWithoutLink(t *testing.T) {
	sel := DefaultSelectors()
	node := postNode(sel, "@knopka", "1")
	node.children[sel.Title][0].props = nil

	_, err := NewExtractor(sel, zap.NewNop()).Extract(0, node)
	assert.Error(t, err)
}

type panickingNode struct{ fakeNode }

func (p *panickingNode) Find(selector string) (Node, error) {
	panic("node detached")
}

func TestExtractRecoversFromBackendPanic(t *testing.T) {
	_, err := NewExtractor(DefaultSelectors(), zap.NewNop()).Extract(2, &panickingNode{})

	var extractErr *ExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, "container", extractErr.Field)
}

func TestExtractAllSkipsMalformedPosts(t *testing.T) {
	sel := DefaultSelectors()
	log, logs := observedLogger()

	broken := postNode(sel, "@second", "2")
	delete(broken.children, sel.Date)

	root := &fakeNode{children: map[string][]*fakeNode{sel.PostList: {
		postNode(sel, "@first", "1"),
		broken,
		postNode(sel, "Private3", "3"),
		postNode(sel, "@fourth", "4"),
		postNode(sel, "@fifth", "5"),
	}}}

	posts, err := NewExtractor(sel, log).ExtractAll(root)
	require.NoError(t, err)
	require.Len(t, posts, 4)

	// document order is kept
	assert.Equal(t, "https://t.me/first/1", posts[0].PostURL)
	assert.Equal(t, "https://t.me/+Private3/3", posts[1].PostURL)
	assert.Equal(t, "https://t.me/fourth/4", posts[2].PostURL)
	assert.Equal(t, "https://t.me/fifth/5", posts[3].PostURL)

	failures := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, failures, 1)
	assert.Equal(t, int64(1), failures[0].ContextMap()["index"])
	assert.Contains(t, failures[0].ContextMap()["error"], "date")
}

func TestExtractAllPostURLInvariant(t *testing.T) {
	sel := DefaultSelectors()
	var containers []*fakeNode
	for _, seg := range []string{"@a", "@b_c", "XyZ", "@d"} {
		containers = append(containers, postNode(sel, seg, "100"+strings.TrimPrefix(seg, "@")))
	}
	root := &fakeNode{children: map[string][]*fakeNode{sel.PostList: containers}}

	posts, err := NewExtractor(sel, zap.NewNop()).ExtractAll(root)
	require.NoError(t, err)
	require.Len(t, posts, len(containers))

	for _, post := range posts {
		assert.True(t, strings.HasPrefix(post.SourceURL, ChannelLinkPrefix))
		assert.True(t, strings.HasPrefix(post.PostURL, post.SourceURL+"/"))
		assert.NotContains(t, strings.TrimPrefix(post.PostURL, post.SourceURL+"/"), "/")
	}
}

func TestExtractAllEmpty(t *testing.T) {
	posts, err := NewExtractor(DefaultSelectors(), zap.NewNop()).ExtractAll(&fakeNode{})
	require.NoError(t, err)
	assert.Empty(t, posts)
}
