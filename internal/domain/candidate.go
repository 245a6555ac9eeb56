package domain

// MatchType indicates which search path produced a retrieval candidate
type MatchType string

const (
	MatchTypeSemantic MatchType = "semantic"
	MatchTypeKeyword  MatchType = "keyword"
	MatchTypeBoth     MatchType = "both"
)

// RetrievalCandidate is a transient, scored retrieval result. It is never
// persisted; it only flows between the retriever, reranker, and assembler.
type RetrievalCandidate struct {
	EntryID         string
	Content         string
	ContentType     ContentType
	Metadata        map[string]string
	SimilarityScore float32
	KeywordScore    float32
	MatchType       MatchType
	CombinedScore   float32
}
