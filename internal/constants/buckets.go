package constants

// ─── Histogram Buckets ─────────────────────────────────────────────
// Pre-defined bucket sets for Prometheus histograms.
// Changing these affects all histograms using them.

// DispatchLatencyBuckets covers 1ms to 10s: a report POST including
// connection retries and the response read.
var DispatchLatencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
	0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// ─── Common Prometheus Label Sets ──────────────────────────────────
// Pre-defined label slices to avoid repeated allocations.

var LabelsKindResult = []string{LabelKind, LabelResult}
var LabelsKind = []string{LabelKind}
var LabelsResult = []string{LabelResult}
var LabelsSubscriber = []string{LabelSubscriber}
