package model

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetric_Validate_DefaultsTypeAndTags(t *testing.T) {
	m := Metric{Name: "cpu", Value: 1.0}
	require.NoError(t, m.Validate())
	require.Equal(t, KindGauge, m.Type)
	require.NotNil(t, m.Tags)
}

func TestMetric_Validate_RejectsEmptyName(t *testing.T) {
	m := Metric{Name: "", Value: 1.0}
	require.Error(t, m.Validate())
}

func TestMetric_Validate_RejectsOversizedName(t *testing.T) {
	m := Metric{Name: strings.Repeat("a", MaxNameBytes+1), Value: 1.0}
	require.Error(t, m.Validate())
}

func TestMetric_Validate_RejectsNonFiniteValue(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		m := Metric{Name: "x", Value: v}
		require.Error(t, m.Validate())
	}
}

func TestMetric_Validate_RejectsUnknownType(t *testing.T) {
	m := Metric{Name: "x", Value: 1.0, Type: Kind("bogus")}
	require.Error(t, m.Validate())
}

func TestMetricBatch_Validate_RejectsEmpty(t *testing.T) {
	b := MetricBatch{}
	require.Error(t, b.Validate())
}

func TestMetricBatch_Validate_RejectsOversized(t *testing.T) {
	metrics := make([]Metric, MaxBatchSize+1)
	for i := range metrics {
		metrics[i] = Metric{Name: "x", Value: 1.0}
	}
	b := MetricBatch{Metrics: metrics}
	err := b.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "Batch size exceeds maximum")
}

func TestMetricBatch_Validate_HappyPath(t *testing.T) {
	b := MetricBatch{Metrics: []Metric{{Name: "cpu", Value: 1.0}}}
	require.NoError(t, b.Validate())
	require.Equal(t, KindGauge, b.Metrics[0].Type)
}
