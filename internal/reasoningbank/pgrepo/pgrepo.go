// Package pgrepo implements reasoningbank.MemoryRepository on top of
// Postgres with the pgvector extension, pushing similarity ranking down to
// SQL instead of scanning in process. The schema and distance-operator
// dispatch (<=> for cosine) follow the project's postgres_vector.go; the
// per-field column layout and atomic single-statement stat updates follow its
// evolving_memory_store_postgres.go.
package pgrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/observability"
	"manifold/internal/reasoningbank"
)

// Repository is a Postgres/pgvector-backed reasoningbank.MemoryRepository.
type Repository struct {
	pool *pgxpool.Pool
	dim  int
}

// New wraps an already-connected pool. Dimension is the fixed embedding
// length D; it is used both for schema creation and for Validate calls.
func New(pool *pgxpool.Pool, dimension int) *Repository {
	return &Repository{pool: pool, dim: dimension}
}

// Init creates the schema if absent. Best-effort statements (extension,
// index creation) swallow their own errors the way postgres_vector.go does,
// since a missing superuser grant for CREATE EXTENSION shouldn't prevent
// startup against an already-provisioned database.
func (r *Repository) Init(ctx context.Context) error {
	_, _ = r.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if r.dim > 0 {
		vecType = fmt.Sprintf("vector(%d)", r.dim)
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS reasoning_memories (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  content TEXT NOT NULL,
  category TEXT NOT NULL,
  source TEXT NOT NULL,
  embedding %s,
  times_retrieved INTEGER NOT NULL DEFAULT 0,
  times_used_in_success INTEGER NOT NULL DEFAULT 0,
  times_used_in_failure INTEGER NOT NULL DEFAULT 0,
  success_rate DOUBLE PRECISION,
  status TEXT NOT NULL DEFAULT 'active',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, vecType))
	if err != nil {
		return fmt.Errorf("%w: create schema: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	_, _ = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS reasoning_memories_status_idx ON reasoning_memories(status)`)
	return nil
}

func (r *Repository) Add(ctx context.Context, rec reasoningbank.MemoryRecord) (string, error) {
	if err := rec.Validate(r.dim); err != nil {
		return "", err
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
INSERT INTO reasoning_memories(id, title, description, content, category, source, embedding, times_retrieved,
  times_used_in_success, times_used_in_failure, success_rate, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::vector,$8,$9,$10,$11,$12,$13,$14)
`, id, rec.Title, rec.Description, rec.Content, string(rec.Category), string(rec.Source),
		toVectorLiteral(rec.Embedding), rec.TimesRetrieved, rec.TimesUsedInSuccess, rec.TimesUsedInFailure,
		rec.SuccessRate, string(reasoningbank.StatusActive), now, now)
	if err != nil {
		return "", fmt.Errorf("%w: insert: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	return id, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*reasoningbank.MemoryRecord, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, title, description, content, category, source, embedding::text, times_retrieved,
  times_used_in_success, times_used_in_failure, success_rate, status, created_at, updated_at
FROM reasoning_memories WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch reasoningbank.RecordPatch) (*reasoningbank.MemoryRecord, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, reasoningbank.ErrNotFound
	}
	if patch.Title != nil {
		existing.Title = *patch.Title
	}
	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.Content != nil {
		existing.Content = *patch.Content
	}
	if patch.Category != nil {
		existing.Category = *patch.Category
	}
	if patch.Source != nil {
		existing.Source = *patch.Source
	}
	if patch.Embedding != nil {
		existing.Embedding = patch.Embedding
	}
	if err := existing.Validate(r.dim); err != nil {
		return nil, err
	}
	existing.UpdatedAt = time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
UPDATE reasoning_memories SET title=$2, description=$3, content=$4, category=$5, source=$6, embedding=$7::vector, updated_at=$8
WHERE id=$1`, id, existing.Title, existing.Description, existing.Content, string(existing.Category),
		string(existing.Source), toVectorLiteral(existing.Embedding), existing.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: update: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	return existing, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reasoning_memories WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return reasoningbank.ErrNotFound
	}
	return nil
}

func (r *Repository) Archive(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reasoning_memories SET status=$2, updated_at=$3 WHERE id=$1`,
		id, string(reasoningbank.StatusArchived), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: archive: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return reasoningbank.ErrNotFound
	}
	return nil
}

func (r *Repository) ScanAll(ctx context.Context, limit int) ([]reasoningbank.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, title, description, content, category, source, embedding::text, times_retrieved,
  times_used_in_success, times_used_in_failure, success_rate, status, created_at, updated_at
FROM reasoning_memories WHERE status=$1 ORDER BY id LIMIT $2`, string(reasoningbank.StatusActive), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	out := make([]reasoningbank.MemoryRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", reasoningbank.ErrStoreUnavailable, err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// RetrieveByEmbedding pushes cosine ranking down to pgvector's <=> operator,
// then applies the non-SQL-pushable filter half (minSuccessRate's
// null-passes rule) in process, and bumps retrieval stats for the selected
// rows. Ordering beyond similarity (successRate desc, updatedAt desc, id
// asc) is re-applied in Go since ties at the SQL layer aren't guaranteed to
// match the spec's exact tie-break chain.
func (r *Repository) RetrieveByEmbedding(ctx context.Context, query []float32, k int, filters reasoningbank.Filters) ([]reasoningbank.MemoryRecord, error) {
	if k <= 0 {
		k = 1
	}
	overfetch := k * 4
	if overfetch < 50 {
		overfetch = 50
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
SELECT id, title, description, content, category, source, embedding::text, times_retrieved,
  times_used_in_success, times_used_in_failure, success_rate, status, created_at, updated_at,
  1 - (embedding <=> $1::vector) AS score
FROM reasoning_memories WHERE status=$3 ORDER BY embedding <=> $1::vector LIMIT $2`),
		toVectorLiteral(query), overfetch, string(reasoningbank.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	type scored struct {
		rec   reasoningbank.MemoryRecord
		score float64
	}
	var candidates []scored
	for rows.Next() {
		var rec reasoningbank.MemoryRecord
		var catStr, srcStr, statusStr, embText string
		var score float64
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Content, &catStr, &srcStr, &embText,
			&rec.TimesRetrieved, &rec.TimesUsedInSuccess, &rec.TimesUsedInFailure, &rec.SuccessRate, &statusStr,
			&rec.CreatedAt, &rec.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("%w: retrieve scan: %v", reasoningbank.ErrStoreUnavailable, err)
		}
		rec.Category = reasoningbank.Category(catStr)
		rec.Source = reasoningbank.Source(srcStr)
		rec.Status = reasoningbank.Status(statusStr)
		rec.Embedding = parseVectorLiteral(embText)
		if !filters.Matches(&rec) {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: retrieve rows: %v", reasoningbank.ErrStoreUnavailable, err)
	}

	reasoningbank.SortCandidates(candidates, func(i int) (reasoningbank.MemoryRecord, float64) {
		return candidates[i].rec, candidates[i].score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]reasoningbank.MemoryRecord, 0, len(candidates))
	now := time.Now().UTC()
	for _, c := range candidates {
		if _, err := r.pool.Exec(ctx, `UPDATE reasoning_memories SET times_retrieved = times_retrieved + 1, updated_at=$2 WHERE id=$1`,
			c.rec.ID, now); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("id", c.rec.ID).Msg("reasoningbank: failed to bump retrieval stats")
			out = append(out, c.rec)
			continue
		}
		c.rec.TimesRetrieved++
		c.rec.UpdatedAt = now
		out = append(out, c.rec)
	}
	return out, nil
}

func (r *Repository) ApplyMerge(ctx context.Context, winnerID string, addRetrieved, addSuccess, addFailure int) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE reasoning_memories SET
  times_retrieved = times_retrieved + $2,
  times_used_in_success = times_used_in_success + $3,
  times_used_in_failure = times_used_in_failure + $4,
  success_rate = CASE WHEN (times_used_in_success + $3 + times_used_in_failure + $4) > 0
    THEN (times_used_in_success + $3)::float / (times_used_in_success + $3 + times_used_in_failure + $4)
    ELSE NULL END,
  updated_at = $5
WHERE id=$1`, winnerID, addRetrieved, addSuccess, addFailure, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: applyMerge: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return reasoningbank.ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateStats(ctx context.Context, ids []string, succeeded bool) {
	var stmt string
	if succeeded {
		stmt = `
UPDATE reasoning_memories SET times_used_in_success = times_used_in_success + 1,
  success_rate = (times_used_in_success + 1)::float / (times_used_in_success + times_used_in_failure + 1),
  updated_at=$2
WHERE id=$1`
	} else {
		stmt = `
UPDATE reasoning_memories SET times_used_in_failure = times_used_in_failure + 1,
  success_rate = times_used_in_success::float / (times_used_in_success + times_used_in_failure + 1),
  updated_at=$2
WHERE id=$1`
	}
	for _, id := range ids {
		if _, err := r.pool.Exec(ctx, stmt, id, time.Now().UTC()); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("id", id).Msg("reasoningbank: updateStats failed for id")
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*reasoningbank.MemoryRecord, error) {
	var rec reasoningbank.MemoryRecord
	var catStr, srcStr, statusStr, embText string
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Content, &catStr, &srcStr, &embText,
		&rec.TimesRetrieved, &rec.TimesUsedInSuccess, &rec.TimesUsedInFailure, &rec.SuccessRate, &statusStr,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Category = reasoningbank.Category(catStr)
	rec.Source = reasoningbank.Source(srcStr)
	rec.Status = reasoningbank.Status(statusStr)
	rec.Embedding = parseVectorLiteral(embText)
	return &rec, nil
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

func parseVectorLiteral(s string) []float32 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &f); err == nil {
			out = append(out, float32(f))
		}
	}
	return out
}
