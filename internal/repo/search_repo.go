package repo

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"
)

// SearchResult is one fused hit: per-channel rank/score plus the
// reciprocal-rank-fusion score. A zero rank means the chunk was absent
// from that channel.
type SearchResult struct {
	ChunkID      string
	VectorRank   int
	VectorScore  float64
	KeywordRank  int
	KeywordScore float64
	FusedScore   float64
}

// SearchRepo runs hybrid retrieval over the chunks table: a cosine-
// distance vector channel and a full-text keyword channel, fused by
// reciprocal rank.
type SearchRepo struct {
	db *sql.DB
}

func NewSearchRepo(db *sql.DB) *SearchRepo {
	return &SearchRepo{db: db}
}

func (r *SearchRepo) Search(ctx context.Context, queryText string, queryVec []float32, channelK, finalK, rrfK int) ([]SearchResult, error) {
	vector, err := r.vectorChannel(ctx, queryVec, channelK)
	if err != nil {
		return nil, err
	}
	keyword, err := r.keywordChannel(ctx, queryText, channelK)
	if err != nil {
		return nil, err
	}
	return fuse(vector, keyword, finalK, rrfK), nil
}

type channelHit struct {
	chunkID string
	score   float64
}

func (r *SearchRepo) vectorChannel(ctx context.Context, queryVec []float32, limit int) ([]channelHit, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}
	const query = `
		SELECT chunk_id, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []channelHit
	for rows.Next() {
		var hit channelHit
		if err := rows.Scan(&hit.chunkID, &hit.score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (r *SearchRepo) keywordChannel(ctx context.Context, queryText string, limit int) ([]channelHit, error) {
	cleaned := sanitizeQuery(queryText)
	if cleaned == "" {
		return nil, nil
	}
	const query = `
		SELECT chunk_id, ts_rank(to_tsvector('simple', content_text), plainto_tsquery('simple', $1)) AS score
		FROM chunks
		WHERE to_tsvector('simple', content_text) @@ plainto_tsquery('simple', $1)
		ORDER BY score DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, cleaned, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []channelHit
	for rows.Next() {
		var hit channelHit
		if err := rows.Scan(&hit.chunkID, &hit.score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// fuse combines both ranked lists with reciprocal-rank fusion:
// score(chunk) = sum over channels of 1 / (rrfK + rank).
func fuse(vector, keyword []channelHit, finalK, rrfK int) []SearchResult {
	merged := map[string]*SearchResult{}
	for i, hit := range vector {
		result := &SearchResult{ChunkID: hit.chunkID, VectorRank: i + 1, VectorScore: hit.score}
		result.FusedScore = 1 / float64(rrfK+i+1)
		merged[hit.chunkID] = result
	}
	for i, hit := range keyword {
		result, ok := merged[hit.chunkID]
		if !ok {
			result = &SearchResult{ChunkID: hit.chunkID}
			merged[hit.chunkID] = result
		}
		result.KeywordRank = i + 1
		result.KeywordScore = hit.score
		result.FusedScore += 1 / float64(rrfK+i+1)
	}
	results := make([]SearchResult, 0, len(merged))
	for _, result := range merged {
		results = append(results, *result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if finalK > 0 && len(results) > finalK {
		results = results[:finalK]
	}
	return results
}

func sanitizeQuery(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var sb strings.Builder
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
