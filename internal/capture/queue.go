package capture

import (
	"context"
	"fmt"

	"firestige.xyz/wisniff/internal/core"
)

// DropPolicy decides which record is discarded when the queue is full.
type DropPolicy int

const (
	// DropTail discards the record being offered.
	DropTail DropPolicy = iota
	// DropHead discards the oldest queued record to make room.
	DropHead
)

// ParseDropPolicy maps a config value to a DropPolicy.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch s {
	case "", "tail":
		return DropTail, nil
	case "head":
		return DropHead, nil
	default:
		return DropTail, fmt.Errorf("unknown drop policy %q", s)
	}
}

func (p DropPolicy) String() string {
	if p == DropHead {
		return "head"
	}
	return "tail"
}

// relayItem is one frame's worth of relay data. The payload prefix is held
// inline so enqueueing does not allocate.
type relayItem struct {
	session string
	meta    core.MetadataRecord
	n       uint8
	prefix  [core.InspectLen]byte
}

func (it *relayItem) payload() []byte {
	return it.prefix[:it.n]
}

// Queue is the bounded hand-off between the receive callback and the
// dispatcher. Offer never blocks. It assumes a single producer.
type Queue struct {
	items  chan relayItem
	policy DropPolicy
}

// NewQueue creates a queue holding at most size records.
func NewQueue(size int, policy DropPolicy) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{items: make(chan relayItem, size), policy: policy}
}

// Offer enqueues it and reports how many records were dropped to do so
// (0 or 1).
func (q *Queue) Offer(it relayItem) int {
	select {
	case q.items <- it:
		return 0
	default:
	}
	if q.policy == DropTail {
		return 1
	}

	dropped := 0
	select {
	case <-q.items:
		dropped = 1
	default:
		// consumer emptied a slot meanwhile
	}
	select {
	case q.items <- it:
		return dropped
	default:
		return dropped + 1
	}
}

// Pop blocks until a record is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (relayItem, bool) {
	select {
	case it := <-q.items:
		return it, true
	case <-ctx.Done():
		return relayItem{}, false
	}
}

// Drain discards everything queued and returns the count.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.items:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}
