package domain

import (
	"fmt"
	"time"
)

// ContentType represents the kind of content stored in a knowledge entry
type ContentType string

const (
	ContentTypeConversation ContentType = "conversation"
	ContentTypeDocument     ContentType = "document"
	ContentTypeUserFact     ContentType = "user_fact"
)

// KnowledgeEntry is a single item in an owner's knowledge store.
// Entries are append-only: they are created on conversation completion or
// document ingestion and never mutated afterwards.
type KnowledgeEntry struct {
	ID              string
	OwnerID         string
	Content         string
	ContentType     ContentType
	Topics          []string
	Metadata        map[string]string
	Embedding       []float32
	ImportanceScore float32
	CreatedAt       time.Time
}

// NewKnowledgeEntry creates a new KnowledgeEntry instance
func NewKnowledgeEntry(
	id, ownerID, content string,
	contentType ContentType,
	topics []string,
	metadata map[string]string,
	importance float32,
	createdAt time.Time,
) *KnowledgeEntry {
	return &KnowledgeEntry{
		ID:              id,
		OwnerID:         ownerID,
		Content:         content,
		ContentType:     contentType,
		Topics:          topics,
		Metadata:        metadata,
		ImportanceScore: importance,
		CreatedAt:       createdAt,
	}
}

// ValidateKnowledgeEntry validates a KnowledgeEntry instance
func ValidateKnowledgeEntry(e *KnowledgeEntry) error {
	if e == nil {
		return fmt.Errorf("knowledge entry cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("knowledge entry ID is required")
	}

	if e.OwnerID == "" {
		return fmt.Errorf("knowledge entry OwnerID is required")
	}

	if e.Content == "" {
		return fmt.Errorf("knowledge entry Content is required")
	}

	if !isValidContentType(e.ContentType) {
		return fmt.Errorf("knowledge entry ContentType is invalid: %s", e.ContentType)
	}

	if e.ImportanceScore < 0 || e.ImportanceScore > 1 {
		return fmt.Errorf("knowledge entry ImportanceScore must be in [0,1]: %f", e.ImportanceScore)
	}

	return nil
}

// isValidContentType checks if a ContentType is valid
func isValidContentType(t ContentType) bool {
	switch t {
	case ContentTypeConversation, ContentTypeDocument, ContentTypeUserFact:
		return true
	}
	return false
}
