package reasoningbank

import (
	"context"
	"math"
)

// Vector is the plain shape. Some callers (notably records read back from a
// document store that preserves a Firestore-style wrapper) carry a vector
// inside a {Values: [...]} wrapper instead of a bare slice; AsVector
// unwraps both uniformly before Cosine ever sees them.
type Vector interface {
	AsVector() []float32
}

// WrappedVector is the {_values: [...]} shape VectorMath must unwrap.
type WrappedVector struct {
	Values []float32
}

func (w WrappedVector) AsVector() []float32 { return w.Values }

func unwrap(v any) ([]float32, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []float32:
		return t, true
	case Vector:
		return t.AsVector(), true
	default:
		return nil, false
	}
}

// Cosine computes cosine similarity in double precision, defensively.
// Per §4.1: absent, non-vector, mismatched-length, or zero-magnitude inputs
// all return 0 rather than erroring; a mismatch or absence also emits a
// warning through the logging capability (logger may be nil, in which case
// the warning is simply dropped — Cosine never panics on a nil logger).
func Cosine(ctx context.Context, u, v any, logger Logger) float64 {
	a, ok1 := unwrap(u)
	b, ok2 := unwrap(v)
	if !ok1 || !ok2 {
		warn(ctx, logger, "reasoningbank: cosine input absent or non-vector shape", nil)
		return 0
	}
	if len(a) != len(b) {
		warn(ctx, logger, "reasoningbank: cosine length mismatch", map[string]any{"lenA": len(a), "lenB": len(b)})
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		magA += fa * fa
		magB += fb * fb
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// CosineVectors is the common case: both inputs are already []float32.
// Exists so call sites inside the core that never deal with the wrapped
// shape (e.g. repository implementations) don't need to box their
// arguments into `any`.
func CosineVectors(ctx context.Context, a, b []float32, logger Logger) float64 {
	return Cosine(ctx, a, b, logger)
}

func warn(ctx context.Context, logger Logger, msg string, fields map[string]any) {
	if logger == nil {
		return
	}
	logger.Warn(ctx, msg, fields)
}
