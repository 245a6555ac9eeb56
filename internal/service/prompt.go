package service

import (
	"fmt"
	"strings"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

const (
	defaultMaxPromptChars  = 6000
	defaultMaxSnippetChars = 400
	defaultMaxTurns        = 6
)

// promptHeader is the fixed instruction/style section. It also teaches the
// model the directive grammar the streaming engine detects.
const promptHeader = `You are a helpful shopping assistant. Answer using the shopper's own
knowledge and the session below. Be concise and concrete.

You may embed action directives inline in your answer, using exactly this
format: [NAVIGATE:/path], [FILTER:criteria], [ADD_TO_CART:item],
[VIEW_CART], [PROCEED_TO_CHECKOUT], [VIEW_ORDERS]. Only emit a directive
when the shopper asked for that action.`

// Turn is one prior conversation exchange.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionContext is the caller-provided session state included in prompts.
type SessionContext struct {
	CartSummary       string   `json:"cart_summary,omitempty"`
	CurrentPage       string   `json:"current_page,omitempty"`
	NavigationTargets []string `json:"navigation_targets,omitempty"`
}

// AssemblerConfig bounds the assembled prompt.
type AssemblerConfig struct {
	MaxPromptChars  int
	MaxSnippetChars int
	MaxTurns        int
}

// DefaultAssemblerConfig returns the default prompt budget.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		MaxPromptChars:  defaultMaxPromptChars,
		MaxSnippetChars: defaultMaxSnippetChars,
		MaxTurns:        defaultMaxTurns,
	}
}

// PromptAssembler builds the bounded generation prompt from the fixed
// header, session state, retrieved snippets, recent turns, and the new
// message. Over budget, it drops lowest-scored snippets first, then oldest
// turns; the header and the new message are never truncated.
type PromptAssembler struct {
	cfg AssemblerConfig
}

// NewPromptAssembler creates a PromptAssembler with the default budget.
func NewPromptAssembler() *PromptAssembler {
	return NewPromptAssemblerWithConfig(DefaultAssemblerConfig())
}

// NewPromptAssemblerWithConfig creates a PromptAssembler with an explicit budget.
func NewPromptAssemblerWithConfig(cfg AssemblerConfig) *PromptAssembler {
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = defaultMaxPromptChars
	}
	if cfg.MaxSnippetChars <= 0 {
		cfg.MaxSnippetChars = defaultMaxSnippetChars
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	return &PromptAssembler{cfg: cfg}
}

// PromptInput carries everything the assembler draws from. Candidates must
// already be sorted by descending score.
type PromptInput struct {
	Message    string
	Turns      []Turn
	Session    SessionContext
	Candidates []*domain.RetrievalCandidate
}

// Assemble returns the generation prompt.
func (a *PromptAssembler) Assemble(in PromptInput) string {
	fixed := a.fixedSections(in)
	budget := a.cfg.MaxPromptChars - sectionLen(fixed)

	turns := in.Turns
	if len(turns) > a.cfg.MaxTurns {
		turns = turns[len(turns)-a.cfg.MaxTurns:]
	}

	snippets := a.snippetLines(in.Candidates)
	turnLines := turnLines(turns)

	// Shed load: lowest-scored snippets go first, then oldest turns.
	for snippetsLen(snippets)+snippetsLen(turnLines) > budget && len(snippets) > 0 {
		snippets = snippets[:len(snippets)-1]
	}
	for snippetsLen(turnLines) > budget-snippetsLen(snippets) && len(turnLines) > 0 {
		turnLines = turnLines[1:]
	}

	var b strings.Builder
	b.WriteString(fixed[0])
	if len(snippets) > 0 {
		b.WriteString("\n\nWhat we know about this shopper:\n")
		b.WriteString(strings.Join(snippets, "\n"))
	}
	if len(turnLines) > 0 {
		b.WriteString("\n\nRecent conversation:\n")
		b.WriteString(strings.Join(turnLines, "\n"))
	}
	b.WriteString(fixed[1])
	return b.String()
}

// fixedSections returns the never-truncated prefix and suffix of the prompt.
func (a *PromptAssembler) fixedSections(in PromptInput) [2]string {
	var prefix strings.Builder
	prefix.WriteString(promptHeader)

	if len(in.Session.NavigationTargets) > 0 {
		prefix.WriteString("\n\nAvailable pages: ")
		prefix.WriteString(strings.Join(in.Session.NavigationTargets, ", "))
	}
	if in.Session.CurrentPage != "" {
		prefix.WriteString("\nShopper is currently on: ")
		prefix.WriteString(in.Session.CurrentPage)
	}
	if in.Session.CartSummary != "" {
		prefix.WriteString("\nCart: ")
		prefix.WriteString(in.Session.CartSummary)
	}

	suffix := fmt.Sprintf("\n\nShopper's message: %s", in.Message)
	return [2]string{prefix.String(), suffix}
}

func (a *PromptAssembler) snippetLines(candidates []*domain.RetrievalCandidate) []string {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || strings.TrimSpace(c.Content) == "" {
			continue
		}
		lines = append(lines, "- "+truncate(collapseWhitespace(c.Content), a.cfg.MaxSnippetChars))
	}
	return lines
}

func turnLines(turns []Turn) []string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = "user"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, collapseWhitespace(t.Content)))
	}
	return lines
}

func sectionLen(fixed [2]string) int {
	return len(fixed[0]) + len(fixed[1])
}

func snippetsLen(lines []string) int {
	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}
	return total
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
