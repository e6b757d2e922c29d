// Package bulk builds the synthetic write batches: sizing them against the
// backend's request ceiling, encoding them in the bulk wire format, and
// compressing them.
package bulk

// Sizer converts an average document size and a discovered byte ceiling
// into a safe document count per batch.
type Sizer struct {
	// SafetyMargin keeps the computed batch below the ceiling despite
	// framing and encoding expansion. Must be in (0,1).
	SafetyMargin float64
	// PerDocOverhead covers the control line and newline framing per doc.
	PerDocOverhead int64
	// HardCap bounds the count regardless of the formula, limiting peak
	// memory and compression cost per batch.
	HardCap int
}

// DocsPerBatch returns the document count for one batch. The result is
// always at least 1 and never exceeds HardCap.
func (s Sizer) DocsPerBatch(avgDocBytes, ceilingBytes int64) int {
	perDoc := avgDocBytes + s.PerDocOverhead
	budget := int64(float64(ceilingBytes) * s.SafetyMargin)

	n := budget / perDoc
	if n < 1 {
		n = 1
	}
	if s.HardCap > 0 && n > int64(s.HardCap) {
		n = int64(s.HardCap)
	}
	return int(n)
}

// Halve returns the next document count after a shrink signal: exactly
// half the previous count, floored at 1.
func Halve(docs int) int {
	if docs <= 1 {
		return 1
	}
	return docs / 2
}
