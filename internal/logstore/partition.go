package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const offsetFileName = "offset.txt"

// Partition owns one append-only message directory: a mutex, a monotonic
// next-offset counter, and the files backing both messages and the
// durable offset marker.
type Partition struct {
	index int
	dir   string

	mu         sync.Mutex
	nextOffset uint64
}

func partitionDir(base string, index int) string {
	return filepath.Join(base, fmt.Sprintf("partition-%d", index))
}

// openPartition ensures the partition directory exists and loads its
// durable offset (absent offset.txt means zero, an empty partition).
func openPartition(base string, index int) (*Partition, error) {
	dir := partitionDir(base, index)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewError("load_offsets", dir, 0, err)
	}
	p := &Partition{index: index, dir: dir}
	off, err := readOffsetFile(filepath.Join(dir, offsetFileName))
	if err != nil {
		return nil, NewError("load_offsets", dir, 0, err)
	}
	p.nextOffset = off
	return p, nil
}

func readOffsetFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// msgFileName zero-pads the offset to 20 decimal digits per the data
// model's on-disk layout.
func msgFileName(offset uint64) string {
	return fmt.Sprintf("%020d.msg", offset)
}

// append writes message under the next offset, updates the durable offset
// marker, and returns the assigned offset. The message file is fsynced
// before it is closed; offset.txt is overwritten in place with
// os.WriteFile, without an fsync or a write-temp-then-rename.
func (p *Partition) append(message []byte) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset := p.nextOffset + 1
	msgPath := filepath.Join(p.dir, msgFileName(offset))
	f, err := os.OpenFile(msgPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, NewError("produce", msgPath, offset, err)
	}
	if _, err := f.Write(message); err != nil {
		f.Close()
		return 0, NewError("produce", msgPath, offset, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, NewError("produce", msgPath, offset, err)
	}
	if err := f.Close(); err != nil {
		return 0, NewError("produce", msgPath, offset, err)
	}

	offsetPath := filepath.Join(p.dir, offsetFileName)
	if err := os.WriteFile(offsetPath, []byte(strconv.FormatUint(offset, 10)), 0o644); err != nil {
		return 0, NewError("produce", offsetPath, offset, err)
	}

	p.nextOffset = offset
	return offset, nil
}

// readMessage reads the message file for the given offset, returning
// os.ErrNotExist (wrapped) if it has not been produced yet.
func (p *Partition) readMessage(offset uint64) ([]byte, error) {
	path := filepath.Join(p.dir, msgFileName(offset))
	return os.ReadFile(path)
}
