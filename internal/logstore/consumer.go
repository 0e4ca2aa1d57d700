package logstore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Delivery is handed to a ConsumerGroup's handler for each replayed
// message.
type Delivery struct {
	Partition int
	Offset    uint64
	Data      []byte
}

// Handler processes one delivered message. The commit that records the
// new read offset happens only after Handler returns, so a crash between
// delivery and commit replays that message on restart: at-least-once,
// never at-most-once.
type Handler func(d Delivery)

// ConsumerGroup tracks, per partition, the last committed read offset for
// a named group, persisted under consumer_offsets/<group>/.
type ConsumerGroup struct {
	group string
	log   *Log
	dir   string

	readOffsets []uint64
	stopped     atomic.Bool
	wg          sync.WaitGroup
}

// NewConsumerGroup allocates read_offsets from
// consumer_offsets/<group>/partition-<k>.offset, defaulting absent files
// to zero ("no messages consumed").
func NewConsumerGroup(log *Log, base, group string) (*ConsumerGroup, error) {
	dir := filepath.Join(base, "consumer_offsets", group)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewError("load_offsets", dir, 0, err)
	}
	cg := &ConsumerGroup{
		group:       group,
		log:         log,
		dir:         dir,
		readOffsets: make([]uint64, log.NumPartitions()),
	}
	for p := range cg.readOffsets {
		off, err := readOffsetFile(cg.offsetPath(p))
		if err != nil {
			return nil, NewError("load_offsets", cg.offsetPath(p), 0, err)
		}
		cg.readOffsets[p] = off
	}
	return cg, nil
}

func (cg *ConsumerGroup) offsetPath(partition int) string {
	return filepath.Join(cg.dir, "partition-"+strconv.Itoa(partition)+".offset")
}

// Start spawns one reader goroutine per partition, each delivering
// messages in strict offset order until Stop is called.
func (cg *ConsumerGroup) Start(handler Handler) {
	for p := 0; p < cg.log.NumPartitions(); p++ {
		cg.wg.Add(1)
		go cg.readPartition(p, handler)
	}
}

func (cg *ConsumerGroup) readPartition(partition int, handler Handler) {
	defer cg.wg.Done()
	for !cg.stopped.Load() {
		next := cg.readOffsets[partition] + 1
		data, err := cg.log.ReadMessage(partition, next)
		if err != nil {
			if os.IsNotExist(err) || strings.Contains(err.Error(), "no such file") {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		handler(Delivery{Partition: partition, Offset: next, Data: data})

		cg.readOffsets[partition] = next
		if err := os.WriteFile(cg.offsetPath(partition), []byte(strconv.FormatUint(next, 10)), 0o644); err != nil {
			continue
		}
	}
}

// Stop sets the atomic stop flag and waits for every reader goroutine to
// exit.
func (cg *ConsumerGroup) Stop() {
	cg.stopped.Store(true)
	cg.wg.Wait()
}
