package domain

import "time"

// StageDurations holds per-stage wall-clock timings for one request.
type StageDurations struct {
	CacheMS     int64
	EmbeddingMS int64
	RetrievalMS int64
	RerankMS    int64
	PromptMS    int64
	GenerateMS  int64
	TotalMS     int64
}

// PerformanceMetric records per-stage timing and outcome for one request.
// Metrics are written fire-and-forget; losing one is acceptable.
type PerformanceMetric struct {
	RequestID     string
	OwnerID       string
	Stages        StageDurations
	CacheHit      bool
	DocsRetrieved int
	RerankApplied bool
	Success       bool
	CreatedAt     time.Time
}
