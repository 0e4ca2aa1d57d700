package logstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_ProduceOffsetsContiguousFromOne(t *testing.T) {
	l, err := Open(t.TempDir(), 4)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, offset, err := l.Produce("client-a", []byte("msg"))
		require.NoError(t, err)
		require.Equal(t, uint64(i), offset)
	}
}

func TestLog_PartitionAssignmentIsDeterministic(t *testing.T) {
	l, err := Open(t.TempDir(), 8)
	require.NoError(t, err)

	p1, _, err := l.Produce("same-client", []byte("a"))
	require.NoError(t, err)
	p2, _, err := l.Produce("same-client", []byte("b"))
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestLog_ReopenReloadsOffsets(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 2)
	require.NoError(t, err)
	_, _, err = l.Produce("client", []byte("msg"))
	require.NoError(t, err)

	reopened, err := Open(dir, 2)
	require.NoError(t, err)
	_, offset, err := reopened.Produce("client", []byte("msg2"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), offset)
}

func TestLog_ConcurrentProducersSamePartitionNoGaps(t *testing.T) {
	l, err := Open(t.TempDir(), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := l.Produce("client", []byte("m"))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(n), l.partitions[0].nextOffset)
}
