package service

import (
	"strings"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

const (
	// maxDetectionBuffer bounds the rolling detection buffer so memory stays
	// capped regardless of stream length.
	maxDetectionBuffer = 800
	// detectionTail is how much recent text survives a truncation, so a
	// directive split across fragment boundaries is never missed.
	detectionTail = 250
)

// DirectiveScanner incrementally detects complete directives in a token
// stream. Fragments are appended to a bounded rolling buffer and scanned;
// matched directives are cut from the buffer only, since the surrounding
// text has already been forwarded to the caller.
//
// The grammar is fixed: `[NAME]` or `[NAME:payload]` with NAME one of
// NAVIGATE, FILTER, ADD_TO_CART, VIEW_CART, PROCEED_TO_CHECKOUT,
// VIEW_ORDERS. Payloads may not contain ']'.
type DirectiveScanner struct {
	buf       string
	maxBuffer int
	tail      int
}

// NewDirectiveScanner creates a scanner with the default buffer bounds.
func NewDirectiveScanner() *DirectiveScanner {
	return &DirectiveScanner{maxBuffer: maxDetectionBuffer, tail: detectionTail}
}

// Feed appends a fragment and returns any directives completed by it.
func (s *DirectiveScanner) Feed(fragment string) []domain.ToolInvocation {
	s.buf += fragment
	if len(s.buf) > s.maxBuffer {
		s.buf = s.buf[len(s.buf)-s.tail:]
	}
	return s.scan()
}

// Flush performs the end-of-stream scan and resets the buffer.
func (s *DirectiveScanner) Flush() []domain.ToolInvocation {
	events := s.scan()
	s.buf = ""
	return events
}

// scan extracts every complete directive currently in the buffer and
// discards text that can no longer be part of one. Partial-match state is
// exactly the retained buffer: it always starts at the earliest '[' that
// could still open a directive.
func (s *DirectiveScanner) scan() []domain.ToolInvocation {
	var events []domain.ToolInvocation

	for {
		open := strings.IndexByte(s.buf, '[')
		if open < 0 {
			s.buf = ""
			return events
		}

		// Text before the first '[' can never match; drop it.
		rest := s.buf[open:]

		end := strings.IndexByte(rest, ']')
		if end < 0 {
			if openCouldMatch(rest) {
				s.buf = rest
			} else {
				s.buf = rest[1:]
				continue
			}
			return events
		}

		if inv, ok := parseDirective(rest[1:end]); ok {
			events = append(events, inv)
			s.buf = rest[end+1:]
			continue
		}

		// Not a directive; the body may still contain a later '['.
		s.buf = rest[1:]
	}
}

// openCouldMatch reports whether a '['-prefixed tail with no ']' yet could
// still grow into a valid directive.
func openCouldMatch(tail string) bool {
	body := tail[1:]

	colon := strings.IndexByte(body, ':')
	if colon >= 0 {
		// Name is complete; payload is still accumulating.
		_, ok := domain.DirectiveTypeForName(body[:colon])
		return ok
	}

	for i := 0; i < len(body); i++ {
		ch := body[i]
		if (ch < 'A' || ch > 'Z') && ch != '_' {
			return false
		}
	}
	return isDirectiveNamePrefix(body)
}

var directiveNameList = []string{
	"NAVIGATE", "FILTER", "ADD_TO_CART", "VIEW_CART", "PROCEED_TO_CHECKOUT", "VIEW_ORDERS",
}

func isDirectiveNamePrefix(s string) bool {
	for _, name := range directiveNameList {
		if strings.HasPrefix(name, s) {
			return true
		}
	}
	return false
}

// parseDirective parses the text between '[' and ']'.
func parseDirective(body string) (domain.ToolInvocation, bool) {
	name := body
	payload := ""
	if colon := strings.IndexByte(body, ':'); colon >= 0 {
		name = body[:colon]
		payload = body[colon+1:]
	}

	directiveType, ok := domain.DirectiveTypeForName(name)
	if !ok {
		return domain.ToolInvocation{}, false
	}

	return domain.ToolInvocation{
		Type:       directiveType,
		RawPayload: payload,
		Data:       normalizePayload(payload),
	}, true
}

// normalizePayload strips newlines and surrounding whitespace.
func normalizePayload(payload string) string {
	payload = strings.ReplaceAll(payload, "\n", " ")
	payload = strings.ReplaceAll(payload, "\r", " ")
	return strings.TrimSpace(payload)
}
