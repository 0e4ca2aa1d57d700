package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_AggregatesWorstStatus(t *testing.T) {
	m := NewManager("ingestion", zap.NewNop(), nil)
	m.Register(NewSinkChecker("sink", func(context.Context) error { return nil }))
	m.Register(NewQueueDepthChecker("writer_queue", 10, func() int { return 50 }))

	h := m.Check(context.Background())
	require.Equal(t, StatusDegraded, h.Status)
	require.Equal(t, StatusHealthy, h.Components["sink"].Status)
	require.Equal(t, StatusDegraded, h.Components["writer_queue"].Status)
}

func TestManager_UnhealthySinkWins(t *testing.T) {
	m := NewManager("ingestion", zap.NewNop(), nil)
	m.Register(NewSinkChecker("sink", func(context.Context) error { return errors.New("disk full") }))
	m.Register(NewQueueDepthChecker("writer_queue", 10, func() int { return 1 }))

	h := m.Check(context.Background())
	require.Equal(t, StatusUnhealthy, h.Status)
}
