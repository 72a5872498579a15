package schedule

// Package-level constants for schedule management.

const (
	// MaxKeywordCandidates bounds the entries listed when a keyword delete is ambiguous.
	MaxKeywordCandidates = 10
)
