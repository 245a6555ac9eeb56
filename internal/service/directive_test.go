package service

import (
	"strings"
	"testing"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectiveScanner_SingleFragment(t *testing.T) {
	s := NewDirectiveScanner()

	events := s.Feed("Sure, let me take you there [NAVIGATE:/products/shoes] now.")
	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectiveNavigate, events[0].Type)
	assert.Equal(t, "/products/shoes", events[0].Data)
	assert.Empty(t, s.Flush())
}

func TestDirectiveScanner_SplitAcrossFragments(t *testing.T) {
	s := NewDirectiveScanner()

	var events []domain.ToolInvocation
	for _, fragment := range []string{"Adding it ", "[ADD_TO", "_CART:red", " sneakers]", " done."} {
		events = append(events, s.Feed(fragment)...)
	}
	events = append(events, s.Flush()...)

	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectiveAddToCart, events[0].Type)
	assert.Equal(t, "red sneakers", events[0].Data)
}

func TestDirectiveScanner_TokenPerCharacter(t *testing.T) {
	s := NewDirectiveScanner()

	var events []domain.ToolInvocation
	for _, r := range "ok [VIEW_CART] and [FILTER:price<50]" {
		events = append(events, s.Feed(string(r))...)
	}
	events = append(events, s.Flush()...)

	require.Len(t, events, 2)
	assert.Equal(t, domain.DirectiveViewCart, events[0].Type)
	assert.Equal(t, "", events[0].Data)
	assert.Equal(t, domain.DirectiveFilter, events[1].Type)
	assert.Equal(t, "price<50", events[1].Data)
}

func TestDirectiveScanner_AllNames(t *testing.T) {
	s := NewDirectiveScanner()

	text := "[NAVIGATE:/a][FILTER:b][ADD_TO_CART:c][VIEW_CART][PROCEED_TO_CHECKOUT][VIEW_ORDERS]"
	events := s.Feed(text)
	events = append(events, s.Flush()...)

	require.Len(t, events, 6)
	types := make([]domain.DirectiveType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, []domain.DirectiveType{
		domain.DirectiveNavigate,
		domain.DirectiveFilter,
		domain.DirectiveAddToCart,
		domain.DirectiveViewCart,
		domain.DirectiveProceedToCheckout,
		domain.DirectiveViewOrders,
	}, types)
}

func TestDirectiveScanner_UnknownNameIgnored(t *testing.T) {
	s := NewDirectiveScanner()

	events := s.Feed("try [TELEPORT:/moon] or [NAVIGATE:/home]")
	events = append(events, s.Flush()...)

	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectiveNavigate, events[0].Type)
}

func TestDirectiveScanner_BracketedProseNotMatched(t *testing.T) {
	s := NewDirectiveScanner()

	events := s.Feed("sizes [small, medium] are in stock [1]")
	events = append(events, s.Flush()...)
	assert.Empty(t, events)
}

func TestDirectiveScanner_PayloadNewlinesNormalized(t *testing.T) {
	s := NewDirectiveScanner()

	events := s.Feed("[FILTER:brand\nnike  ]")
	require.Len(t, events, 1)
	assert.Equal(t, "brand\nnike  ", events[0].RawPayload)
	assert.Equal(t, "brand nike", events[0].Data)
}

func TestDirectiveScanner_TruncationKeepsRecentWindow(t *testing.T) {
	s := NewDirectiveScanner()

	// Long prose with no '[' fills and truncates the buffer; a directive
	// arriving afterwards must still be detected.
	s.Feed(strings.Repeat("lots of plain prose ", 100))
	events := s.Feed("[VIEW_ORDERS]")
	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectiveViewOrders, events[0].Type)
}

func TestDirectiveScanner_PartialSurvivesTruncation(t *testing.T) {
	s := NewDirectiveScanner()

	// An unterminated directive opening near the end of a large fragment
	// lands inside the retained tail.
	prefix := strings.Repeat("x", maxDetectionBuffer)
	events := s.Feed(prefix + "[PROCEED_TO")
	assert.Empty(t, events)

	events = s.Feed("_CHECKOUT]")
	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectiveProceedToCheckout, events[0].Type)
}

func TestDirectiveScanner_FlushDropsIncomplete(t *testing.T) {
	s := NewDirectiveScanner()

	assert.Empty(t, s.Feed("ending mid-directive [NAVIGATE:/che"))
	assert.Empty(t, s.Flush())
	// Buffer resets; later text starts clean.
	assert.Empty(t, s.Feed("ckout]"))
}
