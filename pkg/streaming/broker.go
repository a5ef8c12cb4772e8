package streaming

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snow-ghost/adaptmgr/core"
)

// StateEvent is the SSE event name carrying an AdaptationState
const StateEvent = "adaptation_state"

const subscriberBuffer = 4

// Broker broadcasts adaptation states to SSE subscribers and remembers the
// latest one. It implements core.StatePublisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan core.AdaptationState]struct{}
	latest      *core.AdaptationState
	published   uint64
	keepAlive   time.Duration
	logger      *zap.Logger
}

// NewBroker creates a broker with no subscribers
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subscribers: make(map[chan core.AdaptationState]struct{}),
		keepAlive:   15 * time.Second,
		logger:      logger,
	}
}

// Publish stores state as the latest snapshot and fans it out. Subscribers
// whose buffer is full miss this snapshot.
func (b *Broker) Publish(ctx context.Context, state core.AdaptationState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := state
	b.latest = &s
	b.published++

	for ch := range b.subscribers {
		select {
		case ch <- state:
		default:
			b.logger.Warn("slow subscriber dropped snapshot", zap.Uint64("cycle", state.Cycle))
		}
	}
	return nil
}

// Latest returns the most recent snapshot
func (b *Broker) Latest() (core.AdaptationState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return core.AdaptationState{}, false
	}
	return *b.latest, true
}

// Published returns the number of snapshots published so far
func (b *Broker) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published
}

// Subscribe registers a new subscriber. The returned cancel func must be called.
func (b *Broker) Subscribe() (<-chan core.AdaptationState, func()) {
	ch := make(chan core.AdaptationState, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the current subscriber count
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ServeHTTP streams snapshots as SSE, starting with the latest one if any
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	updates, cancel := b.Subscribe()
	defer cancel()

	if err := sse.WriteRetry(b.keepAlive); err != nil {
		return
	}
	if latest, ok := b.Latest(); ok {
		if err := sse.WriteEvent(StateEvent, cycleID(latest.Cycle), latest); err != nil {
			return
		}
	} else if err := sse.WriteComment("waiting for first cycle"); err != nil {
		return
	}

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case state := <-updates:
			if err := sse.WriteEvent(StateEvent, cycleID(state.Cycle), state); err != nil {
				b.logger.Debug("subscriber went away", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		}
	}
}
