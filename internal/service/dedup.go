package service

import (
	"sort"
	"strings"

	"github.com/thunderlab/examprep/internal/model"
)

// QuerySet is the deduplicated search workload for one retrieval run.
// Requesters maps each query back to every signal that asked for it so
// one search can feed evidence rows for all of them.
type QuerySet struct {
	Queries    []string
	Requesters map[string][]string
}

// DeduplicateQueries flattens signal search queries into a unique,
// sorted set. Queries are trimmed and anything under two characters is
// dropped.
func DeduplicateQueries(signals []model.Signal) QuerySet {
	requesters := make(map[string][]string)
	for _, signal := range signals {
		seen := make(map[string]struct{})
		for _, query := range signal.SearchQueries {
			query = strings.TrimSpace(query)
			if len([]rune(query)) < 2 {
				continue
			}
			if _, ok := seen[query]; ok {
				continue
			}
			seen[query] = struct{}{}
			requesters[query] = append(requesters[query], signal.SignalID)
		}
	}
	queries := make([]string, 0, len(requesters))
	for query := range requesters {
		queries = append(queries, query)
	}
	sort.Strings(queries)
	return QuerySet{Queries: queries, Requesters: requesters}
}
