package bus

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/haricheung/playcrack/internal/types"
)

const (
	subscriberBufSize = 256
	tapBufSize        = 256
)

type subscriber struct {
	want map[types.MessageType]bool
	ch   chan types.Message
}

// Bus is the observable progress bus. Search runs publish to it; the run log
// subscribes and the terminal display reads the tap.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscriber
	tapCh   chan types.Message
	closed  bool
	dropped atomic.Int64
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		tapCh: make(chan types.Message, tapBufSize),
	}
}

// Publish fans out msg to every subscriber interested in msg.Type and to the tap.
// Non-blocking: if a channel is full the message is dropped with a warning, so a
// slow consumer never stalls a search. Publishing after Close is a no-op.
func (b *Bus) Publish(msg types.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, s := range b.subs {
		if !s.want[msg.Type] {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			b.dropped.Add(1)
			log.Printf("[BUS] WARNING: subscriber channel full for type=%s run=%s, message dropped", msg.Type, msg.RunID)
		}
	}

	select {
	case b.tapCh <- msg:
	default:
		b.dropped.Add(1)
	}
}

// Subscribe returns a receive-only channel delivering messages of any of the
// given types in publish order. Each call creates a new independent channel.
// The channel is closed by Close; after Close it is returned already closed.
func (b *Bus) Subscribe(ts ...types.MessageType) <-chan types.Message {
	s := subscriber{
		want: make(map[types.MessageType]bool, len(ts)),
		ch:   make(chan types.Message, subscriberBufSize),
	}
	for _, t := range ts {
		s.want[t] = true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch
	}
	b.subs = append(b.subs, s)
	return s.ch
}

// Tap returns the read-only tap channel that sees every message.
// Only one consumer should read it; calling Tap repeatedly returns the same channel.
// Tap drops are counted but not logged, the display being best-effort.
func (b *Bus) Tap() <-chan types.Message {
	return b.tapCh
}

// Close closes every subscriber channel and the tap. Consumers drain what is
// buffered and then see the channel closed. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	close(b.tapCh)
}

// Dropped returns how many deliveries were discarded because a channel was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
