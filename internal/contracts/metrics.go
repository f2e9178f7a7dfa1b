package contracts

// MetricName is one of the provider metrics used for scoring
type MetricName string

const (
	MetricPE           MetricName = "peBasicExclExtraTTM"
	MetricROE          MetricName = "roeTTM"
	MetricROA          MetricName = "roaTTM"
	MetricNetMargin    MetricName = "netMarginTTM"
	MetricDebtToEquity MetricName = "totalDebt/totalEquityAnnual"
)

// ScoringMetrics is the fixed allow-list requested from the provider, in storage order
var ScoringMetrics = []MetricName{
	MetricPE,
	MetricROE,
	MetricROA,
	MetricNetMargin,
	MetricDebtToEquity,
}

// IsScoringMetric reports whether name is on the allow-list
func IsScoringMetric(name string) bool {
	for _, m := range ScoringMetrics {
		if string(m) == name {
			return true
		}
	}
	return false
}

// MetricsBag holds per-symbol metric values. A key with a nil value means the
// provider (or cache) knows the metric is absent; a missing key means unknown.
type MetricsBag map[MetricName]*float64

// Value returns the metric and whether it is present with a number
func (b MetricsBag) Value(name MetricName) (float64, bool) {
	v, ok := b[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Has reports whether the key is known (number or explicit null)
func (b MetricsBag) Has(name MetricName) bool {
	_, ok := b[name]
	return ok
}

// Covers reports whether every name is known
func (b MetricsBag) Covers(names []MetricName) bool {
	for _, n := range names {
		if !b.Has(n) {
			return false
		}
	}
	return true
}

// PresentCount counts scoring metrics carrying a number
func (b MetricsBag) PresentCount() int {
	n := 0
	for _, m := range ScoringMetrics {
		if _, ok := b.Value(m); ok {
			n++
		}
	}
	return n
}

// Float returns a pointer to v, handy for building bags and optional fields
func Float(v float64) *float64 {
	return &v
}
