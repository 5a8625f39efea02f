// Package qdrantrepo is a Qdrant-backed MemoryRepository. Grounded on the
// teacher's qdrantVector (qdrant_vector.go): the same deterministic-UUID
// point-id mapping and NewVectorsDense/NewValueMap/Query call shapes, widened
// from VectorStore's narrow Upsert/Delete/SimilaritySearch surface to the
// full MemoryRecord CRUD + retrieval contract, with every record field
// carried as point payload instead of an opaque string-to-string metadata
// map.
package qdrantrepo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"manifold/internal/reasoningbank"
)

// payloadIDField holds the repository id in every point's payload; the point
// id itself is a deterministic UUID derived from it unless the id already is
// a UUID.
const payloadIDField = "_original_id"

const timeLayout = time.RFC3339Nano

// Repository is a MemoryRepository backed by a Qdrant collection.
type Repository struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// New connects to Qdrant at dsn (host[:port], gRPC scheme/port per the
// client's Config) and ensures the collection exists with cosine distance
// and the given vector size.
func New(ctx context.Context, dsn, collection string, dimension int) (*Repository, error) {
	if collection == "" {
		return nil, fmt.Errorf("reasoningbank/qdrantrepo: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("reasoningbank/qdrantrepo: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("reasoningbank/qdrantrepo: invalid port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("reasoningbank/qdrantrepo: create client: %w", err)
	}
	r := &Repository{client: client, collection: collection, dimension: dimension}
	if err := r.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureCollection(ctx context.Context) error {
	exists, err := r.client.CollectionExists(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("reasoningbank/qdrantrepo: check collection: %w", err)
	}
	if exists {
		return nil
	}
	if r.dimension <= 0 {
		return fmt.Errorf("reasoningbank/qdrantrepo: dimension must be > 0")
	}
	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(r.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("reasoningbank/qdrantrepo: create collection: %w", err)
	}
	return nil
}

func pointIDFor(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (r *Repository) Add(ctx context.Context, rec reasoningbank.MemoryRecord) (string, error) {
	if err := rec.Validate(r.dimension); err != nil {
		return "", err
	}
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Status = reasoningbank.StatusActive
	if err := r.upsert(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (r *Repository) upsert(ctx context.Context, rec reasoningbank.MemoryRecord) error {
	payload := toPayload(rec)
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointIDFor(rec.ID)),
		Vectors: qdrant.NewVectorsDense(rec.Embedding),
		Payload: qdrant.NewValueMap(payload),
	}
	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*reasoningbank.MemoryRecord, error) {
	points, err := r.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: r.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointIDFor(id))},
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	rec := fromPoint(points[0])
	if rec.Status != reasoningbank.StatusActive && rec.Status != reasoningbank.StatusArchived {
		return nil, nil
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
	if err := existing.Validate(r.dimension); err != nil {
		return nil, err
	}
	existing.UpdatedAt = time.Now().UTC()
	if err := r.upsert(ctx, *existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointIDFor(id))),
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Repository) Archive(ctx context.Context, id string) error {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return reasoningbank.ErrNotFound
	}
	existing.Status = reasoningbank.StatusArchived
	existing.UpdatedAt = time.Now().UTC()
	return r.upsert(ctx, *existing)
}

func (r *Repository) ScanAll(ctx context.Context, limit int) ([]reasoningbank.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10000
	}
	lim := uint32(limit)
	points, err := r.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: r.collection,
		Limit:          &lim,
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("status", string(reasoningbank.StatusActive))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanAll: %v", reasoningbank.ErrStoreUnavailable, err)
	}
	out := make([]reasoningbank.MemoryRecord, 0, len(points))
	for _, p := range points {
		out = append(out, *fromRetrievedPoint(p))
	}
	return out, nil
}

func (r *Repository) RetrieveByEmbedding(ctx context.Context, query []float32, k int, filters reasoningbank.Filters) ([]reasoningbank.MemoryRecord, error) {
	if k <= 0 {
		k = 1
	}
	overfetch := uint64(k * 4)
	if overfetch < 50 {
		overfetch = 50
	}
	result, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          &overfetch,
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("status", string(reasoningbank.StatusActive))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: retrieveByEmbedding: %v", reasoningbank.ErrStoreUnavailable, err)
	}

	type scored struct {
		rec   reasoningbank.MemoryRecord
		score float64
	}
	var candidates []scored
	for _, hit := range result {
		rec := fromScoredPoint(hit)
		if !filters.Matches(rec) {
			continue
		}
		candidates = append(candidates, scored{rec: *rec, score: float64(hit.Score)})
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
		rec := c.rec
		rec.TimesRetrieved++
		rec.UpdatedAt = now
		if err := r.upsert(ctx, rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repository) ApplyMerge(ctx context.Context, winnerID string, addRetrieved, addSuccess, addFailure int) error {
	existing, err := r.Get(ctx, winnerID)
	if err != nil {
		return err
	}
	if existing == nil {
		return reasoningbank.ErrNotFound
	}
	existing.TimesRetrieved += addRetrieved
	existing.TimesUsedInSuccess += addSuccess
	existing.TimesUsedInFailure += addFailure
	existing.RecomputeSuccessRate()
	existing.UpdatedAt = time.Now().UTC()
	return r.upsert(ctx, *existing)
}

func (r *Repository) UpdateStats(ctx context.Context, ids []string, succeeded bool) {
	for _, id := range ids {
		existing, err := r.Get(ctx, id)
		if err != nil || existing == nil {
			continue
		}
		if succeeded {
			existing.TimesUsedInSuccess++
		} else {
			existing.TimesUsedInFailure++
		}
		existing.RecomputeSuccessRate()
		existing.UpdatedAt = time.Now().UTC()
		_ = r.upsert(ctx, *existing)
	}
}

// Close releases the underlying gRPC connection.
func (r *Repository) Close() error {
	return r.client.Close()
}

func toPayload(rec reasoningbank.MemoryRecord) map[string]any {
	p := map[string]any{
		payloadIDField:        rec.ID,
		"title":                rec.Title,
		"description":          rec.Description,
		"content":              rec.Content,
		"category":             string(rec.Category),
		"source":               string(rec.Source),
		"times_retrieved":      int64(rec.TimesRetrieved),
		"times_used_success":   int64(rec.TimesUsedInSuccess),
		"times_used_failure":   int64(rec.TimesUsedInFailure),
		"status":               string(rec.Status),
		"created_at":           rec.CreatedAt.Format(timeLayout),
		"updated_at":           rec.UpdatedAt.Format(timeLayout),
	}
	if rec.SuccessRate != nil {
		p["success_rate"] = *rec.SuccessRate
	}
	return p
}

func fromPoint(p *qdrant.RetrievedPoint) *reasoningbank.MemoryRecord {
	return recordFromPayload(p.Payload, p.Vectors)
}

func fromRetrievedPoint(p *qdrant.RetrievedPoint) *reasoningbank.MemoryRecord {
	return recordFromPayload(p.Payload, p.Vectors)
}

func fromScoredPoint(p *qdrant.ScoredPoint) *reasoningbank.MemoryRecord {
	return recordFromPayload(p.Payload, p.Vectors)
}

func recordFromPayload(payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) *reasoningbank.MemoryRecord {
	rec := &reasoningbank.MemoryRecord{}
	if id, ok := payload[payloadIDField]; ok {
		rec.ID = id.GetStringValue()
	}
	rec.Title = stringField(payload, "title")
	rec.Description = stringField(payload, "description")
	rec.Content = stringField(payload, "content")
	rec.Category = reasoningbank.Category(stringField(payload, "category"))
	rec.Source = reasoningbank.Source(stringField(payload, "source"))
	rec.Status = reasoningbank.Status(stringField(payload, "status"))
	rec.TimesRetrieved = int(intField(payload, "times_retrieved"))
	rec.TimesUsedInSuccess = int(intField(payload, "times_used_success"))
	rec.TimesUsedInFailure = int(intField(payload, "times_used_failure"))
	if v, ok := payload["success_rate"]; ok {
		rate := v.GetDoubleValue()
		rec.SuccessRate = &rate
	}
	if ts, err := time.Parse(timeLayout, stringField(payload, "created_at")); err == nil {
		rec.CreatedAt = ts
	}
	if ts, err := time.Parse(timeLayout, stringField(payload, "updated_at")); err == nil {
		rec.UpdatedAt = ts
	}
	if vectors != nil {
		if dense := vectors.GetVector(); dense != nil {
			rec.Embedding = dense.GetData()
		}
	}
	return rec
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func intField(payload map[string]*qdrant.Value, key string) int64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	return v.GetIntegerValue()
}
