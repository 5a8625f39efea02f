package reasoningbank

import (
	"fmt"
	"math"
	"time"
)

// Category classifies why a memory was recorded.
type Category string

const (
	CategoryCodeRejection     Category = "code_rejection"
	CategoryBuildFailure      Category = "build_failure"
	CategoryErrorPattern      Category = "error_pattern"
	CategoryFixStrategy       Category = "fix_strategy"
	CategoryGenerationPattern Category = "generation_pattern"
	CategoryGeneralStrategy   Category = "general_strategy"
)

var validCategories = map[Category]bool{
	CategoryCodeRejection:     true,
	CategoryBuildFailure:      true,
	CategoryErrorPattern:      true,
	CategoryFixStrategy:       true,
	CategoryGenerationPattern: true,
	CategoryGeneralStrategy:   true,
}

// buildRelatedCategories is the whitelist retrieveForCodeGeneration prefers,
// in the order they were observed to matter most for code-generation tasks.
var buildRelatedCategories = []Category{
	CategoryBuildFailure,
	CategoryCodeRejection,
	CategoryErrorPattern,
	CategoryFixStrategy,
}

// Source records the provenance event that produced a memory.
type Source string

const (
	SourceBuildRejection Source = "build_rejection"
	SourceBuildFailure   Source = "build_failure"
	SourceTaskFailure    Source = "task_failure"
	SourceTaskSuccess    Source = "task_success"
	SourceRepairSuccess  Source = "repair_success"
)

var validSources = map[Source]bool{
	SourceBuildRejection: true,
	SourceBuildFailure:   true,
	SourceTaskFailure:    true,
	SourceTaskSuccess:    true,
	SourceRepairSuccess:  true,
}

// Status is the one-way lifecycle of a record's visibility to retrieval.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// MemoryRecord is the sole durable entity of the core. Repository
// implementations own its persistent representation; every other component
// only ever sees value snapshots.
type MemoryRecord struct {
	ID          string
	Title       string
	Description string
	Content     string
	Category    Category
	Source      Source
	Embedding   []float32

	TimesRetrieved     int
	TimesUsedInSuccess int
	TimesUsedInFailure int
	// SuccessRate is nil until any success/failure has been recorded.
	SuccessRate *float64

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeSuccessRate enforces the data-model invariant: SuccessRate is nil
// while no outcome has been recorded, otherwise the ratio of successes to
// recorded outcomes.
func (m *MemoryRecord) RecomputeSuccessRate() {
	denom := m.TimesUsedInSuccess + m.TimesUsedInFailure
	if denom == 0 {
		m.SuccessRate = nil
		return
	}
	rate := float64(m.TimesUsedInSuccess) / float64(denom)
	m.SuccessRate = &rate
}

// Validate checks the invariants required at insert/update time. It does not
// check ID (repository-assigned) or timestamps (repository-managed).
func (m *MemoryRecord) Validate(dim int) error {
	if m.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRecord)
	}
	if m.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidRecord)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidRecord)
	}
	if !validCategories[m.Category] {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRecord, m.Category)
	}
	if !validSources[m.Source] {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRecord, m.Source)
	}
	if err := validateEmbedding(m.Embedding, dim); err != nil {
		return err
	}
	if m.TimesRetrieved < 0 || m.TimesUsedInSuccess < 0 || m.TimesUsedInFailure < 0 {
		return fmt.Errorf("%w: counts must be non-negative", ErrInvalidRecord)
	}
	if m.TimesUsedInSuccess+m.TimesUsedInFailure > m.TimesRetrieved {
		return fmt.Errorf("%w: timesUsedInSuccess+timesUsedInFailure exceeds timesRetrieved", ErrInvalidRecord)
	}
	if m.SuccessRate != nil && (*m.SuccessRate < 0 || *m.SuccessRate > 1) {
		return fmt.Errorf("%w: successRate out of [0,1]", ErrInvalidRecord)
	}
	return nil
}

func validateEmbedding(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: embedding is required", ErrInvalidEmbedding)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: embedding length %d != %d", ErrInvalidEmbedding, len(v), dim)
	}
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: embedding contains non-finite component", ErrInvalidEmbedding)
		}
	}
	return nil
}

// RecordPatch carries the subset of fields an update call wants to change.
// Nil fields are left untouched.
type RecordPatch struct {
	Title       *string
	Description *string
	Content     *string
	Category    *Category
	Source      *Source
	Embedding   []float32
}

// Filters narrows retrieveByEmbedding results.
type Filters struct {
	MinSuccessRate *float64
	Categories     map[Category]bool
}

// Matches reports whether a record satisfies the filter set. A nil
// MinSuccessRate or empty Categories means "no constraint on that axis".
func (f Filters) Matches(m *MemoryRecord) bool {
	if f.MinSuccessRate != nil {
		if m.SuccessRate != nil && *m.SuccessRate < *f.MinSuccessRate {
			return false
		}
		// SuccessRate == nil always passes: new records are not punished.
	}
	if len(f.Categories) > 0 && !f.Categories[m.Category] {
		return false
	}
	return true
}

// Task is opaque to the core: MaTTS only ever reads Description/
// TemplateName (to build a retrieval query) and Parameters (serialized into
// the query and handed to the executor/reflector, with retrieved memory
// contents added under the "reasoningbank_memories" key).
type Task struct {
	Description  string
	TemplateName string
	Parameters   map[string]any
}

// queryText forms the text used to embed a retrieval query for this task,
// per §4.6 step 1: description (falling back to template name) plus a
// canonical serialization of parameters.
func (t Task) queryText() string {
	base := t.Description
	if base == "" {
		base = t.TemplateName
	}
	return base + " " + canonicalParams(t.Parameters)
}

// merge applies a shallow field-override patch: named fields in patch
// replace the same-named field in the task; Parameters keys are merged
// key-by-key (same shallow-override semantics, one level deeper since
// Parameters is itself a map).
func (t Task) merge(patch Task) Task {
	out := t
	if patch.Description != "" {
		out.Description = patch.Description
	}
	if patch.TemplateName != "" {
		out.TemplateName = patch.TemplateName
	}
	if len(patch.Parameters) > 0 {
		merged := make(map[string]any, len(out.Parameters)+len(patch.Parameters))
		for k, v := range out.Parameters {
			merged[k] = v
		}
		for k, v := range patch.Parameters {
			merged[k] = v
		}
		out.Parameters = merged
	}
	return out
}

// TrajectoryResult is the shape TrajectoryScorer reads and both MaTTS
// strategies return. Executors/reflectors populate whichever fields are
// meaningful for their domain; absent fields simply don't contribute to the
// score.
type TrajectoryResult struct {
	Success bool

	// Steps, present if the executor tracked a step count.
	Steps *int
	// ExecutionTime in milliseconds, present if measured.
	ExecutionTime *int
	// OutputData is an arbitrary result payload; only its key count matters
	// to the scorer.
	OutputData map[string]any
	// HTMLReport, present if the executor produced a human-readable report.
	HTMLReport string
}

// ReflectResult is returned by a user-supplied reflector in MaTTSSequential.
type ReflectResult struct {
	ShouldRefine bool
	RefinedTask  Task
}

// ConsolidationStats is returned by ConsolidationEngine.Consolidate.
type ConsolidationStats struct {
	StartTime           time.Time
	EndTime             time.Time
	TotalMemoriesBefore int
	Pruned              int
	Merged              int
	Archived            int
	Success             bool
	Errors              []string
}
