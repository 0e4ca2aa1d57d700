package logstore

import (
	"context"
	"fmt"
	"os"
)

// Log is the local partitioned, append-only log: a fixed number of
// partitions chosen at construction, each independently locked.
type Log struct {
	base       string
	partitions []*Partition
}

// Open creates or reopens a log with n partitions rooted at base,
// loading each partition's durable offset via load_offsets semantics.
func Open(base string, n int) (*Log, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, NewError("load_offsets", base, 0, err)
	}
	l := &Log{base: base, partitions: make([]*Partition, n)}
	for i := 0; i < n; i++ {
		p, err := openPartition(base, i)
		if err != nil {
			return nil, err
		}
		l.partitions[i] = p
	}
	return l, nil
}

// NumPartitions returns N.
func (l *Log) NumPartitions() int {
	return len(l.partitions)
}

// Produce assigns key to a partition via the stable hash, appends message
// under a per-partition mutex, and returns the resulting (partition,
// offset) identity.
func (l *Log) Produce(key string, message []byte) (int, uint64, error) {
	idx := int(stableHash(key) % uint64(len(l.partitions)))
	offset, err := l.partitions[idx].append(message)
	if err != nil {
		return idx, 0, err
	}
	return idx, offset, nil
}

// ReadMessage reads one message directly out of a partition, used by
// ConsumerGroup readers.
func (l *Log) ReadMessage(partition int, offset uint64) ([]byte, error) {
	return l.partitions[partition].readMessage(offset)
}

// Ping stats every partition directory, giving a health checker a cheap
// liveness probe for the local sink: a partition directory that's gone
// missing or turned unreadable out from under a running process (disk
// unmounted, permissions changed) fails this before a Produce call does.
func (l *Log) Ping(_ context.Context) error {
	if fi, err := os.Stat(l.base); err != nil {
		return fmt.Errorf("stat log base %s: %w", l.base, err)
	} else if !fi.IsDir() {
		return fmt.Errorf("log base %s is not a directory", l.base)
	}
	for _, p := range l.partitions {
		fi, err := os.Stat(p.dir)
		if err != nil {
			return fmt.Errorf("stat partition dir %s: %w", p.dir, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("partition dir %s is not a directory", p.dir)
		}
	}
	return nil
}
