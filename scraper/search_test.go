package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSearchExecutorReady(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel, postNode(sel, "@knopka", "1"))
	timeouts := testTimeouts()

	outcome, err := NewSearchExecutor(sel, timeouts, zap.NewNop()).Run(context.Background(), page, "платье женское")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, outcome.Kind)

	assert.Equal(t, "платье женское", page.elements[sel.SearchInput].input)
	assert.Equal(t, 1, page.elements[sel.SubmitButton].clicks)
	assert.Equal(t, 1, page.elements[sel.SortByViews].parent.clicks, "sort label clicked")
	assert.Equal(t, timeouts.Results, page.waits[sel.PostList])
	assert.Equal(t, timeouts.Input, page.waits[sel.SearchInput])
}

func TestSearchExecutorAuthRequired(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel, postNode(sel, "@knopka", "1"))
	page.elements[sel.AuthButton] = &fakeNode{props: map[string]string{"href": "https://tgstat.ru/login?token=L"}}

	outcome, err := NewSearchExecutor(sel, testTimeouts(), zap.NewNop()).Run(context.Background(), page, "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthRequired, outcome.Kind)
	assert.Equal(t, "https://tgstat.ru/login?token=L", outcome.AuthLink)

	// the attempt halts before sorting
	assert.Zero(t, page.elements[sel.SortByViews].parent.clicks)
	assert.NotContains(t, page.waits, sel.PostList)
}

func TestSearchExecutorSortFailureIsSwallowed(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel, postNode(sel, "@knopka", "1"))
	delete(page.elements, sel.SortByViews)

	log, logs := observedLogger()
	outcome, err := NewSearchExecutor(sel, testTimeouts(), log).Run(context.Background(), page, "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, outcome.Kind)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("Failed to sort by popularity")
	assert.Equal(t, 1, warnings.Len())
}

func TestSearchExecutorSortClickError(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel, postNode(sel, "@knopka", "1"))
	page.elements[sel.SortByViews].parent.clickErr = errors.New("not clickable")

	outcome, err := NewSearchExecutor(sel, testTimeouts(), zap.NewNop()).Run(context.Background(), page, "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, outcome.Kind)
}

func TestSearchExecutorResultTimeout(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel)

	_, err := NewSearchExecutor(sel, testTimeouts(), zap.NewNop()).Run(context.Background(), page, "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultTimeout)
	assert.NotErrorIs(t, err, ErrAuthenticationUnrecovered)
}

func TestSearchExecutorMissingForm(t *testing.T) {
	sel := DefaultSelectors()

	t.Run("no input", func(t *testing.T) {
		page := readyPage(sel)
		delete(page.elements, sel.SearchInput)

		_, err := NewSearchExecutor(sel, testTimeouts(), zap.NewNop()).Run(context.Background(), page, "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrElementNotFound)
		assert.Contains(t, err.Error(), "state idle")
	})

	t.Run("no button", func(t *testing.T) {
		page := readyPage(sel)
		delete(page.elements, sel.SubmitButton)

		_, err := NewSearchExecutor(sel, testTimeouts(), zap.NewNop()).Run(context.Background(), page, "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "state input_filled")
	})
}

func TestSearchStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "auth_required", StateAuthRequired.String())
	assert.Equal(t, "state(42)", SearchState(42).String())
}
