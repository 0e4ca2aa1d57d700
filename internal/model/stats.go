package model

// BatchStats aggregates count/sum/min/max per metric name within a single
// batch, computed once at validation time and fed into the internal
// metrics surface as a gauge vector.
type BatchStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

// ComputeBatchStats folds a validated batch's metrics into one BatchStats
// entry per distinct name. Callers must validate the batch first; this
// does not re-check finiteness.
func ComputeBatchStats(b *MetricBatch) map[string]*BatchStats {
	out := make(map[string]*BatchStats)
	for _, m := range b.Metrics {
		s, ok := out[m.Name]
		if !ok {
			s = &BatchStats{Min: m.Value, Max: m.Value}
			out[m.Name] = s
		}
		s.Count++
		s.Sum += m.Value
		if m.Value < s.Min {
			s.Min = m.Value
		}
		if m.Value > s.Max {
			s.Max = m.Value
		}
	}
	return out
}
