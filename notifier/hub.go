package notifier

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
)

// Hub fans change signals out to in-process subscriptions. It is the
// Notifier every synchronizer of this process subscribes to; relays feed it
// with signals coming from other processes.
type Hub struct {
	// connectionMap maps from family id to the family's active subscriptions,
	// keyed by subscription id so that removal is O(1). An entry is deleted
	// once the family has no subscription left.
	connectionMap map[string]map[string]*subscription

	// Adding/removing a subscription grabs the write lock, pushing a signal
	// the read lock.
	mu sync.RWMutex
}

var (
	_ feed.Notifier        = (*Hub)(nil)
	_ feed.ChangePublisher = (*Hub)(nil)
)

func NewHub() *Hub {
	return &Hub{
		connectionMap: make(map[string]map[string]*subscription),
	}
}

// subscription holds at most one undelivered signal. Several changes before
// the reader wakes up collapse into one, which is all a re-hydration needs.
type subscription struct {
	hub      *Hub
	id       string
	familyID string
	ch       chan struct{}

	// done is closed on Unsubscribe and releases the garbage collector.
	done chan struct{}
	once sync.Once
}

func (s *subscription) C() <-chan struct{} { return s.ch }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		delete(s.hub.connectionMap[s.familyID], s.id)
		if len(s.hub.connectionMap[s.familyID]) == 0 {
			delete(s.hub.connectionMap, s.familyID)
		}
		close(s.ch)
		close(s.done)
	})
}

func (s *subscription) poke() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Subscribe registers a subscription for familyID. It is dropped on
// Unsubscribe or when ctx is done, whichever comes first. Thread-safe.
func (h *Hub) Subscribe(ctx context.Context, familyID string) (feed.Subscription, error) {
	sub := &subscription{
		hub:      h,
		id:       "family_subscription_" + uuid.New().String(),
		familyID: familyID,
		ch:       make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.connectionMap[familyID]; !ok {
		h.connectionMap[familyID] = make(map[string]*subscription)
	}
	h.connectionMap[familyID][sub.id] = sub
	h.mu.Unlock()

	// Spin up a background garbage collector.
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Thread-safe
func (h *Hub) GetActiveSubscriptionsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, mp := range h.connectionMap {
		count += len(mp)
	}
	return count
}

// Publish delivers signal to the subscriptions it concerns. A reactions
// signal has no family scope and reaches everybody. Returns how many
// subscriptions were poked. Thread-safe.
func (h *Hub) Publish(signal *model.Signal) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	poked := 0
	if signal.SignalType == model.SignalTypeReactionsChanged {
		for _, subs := range h.connectionMap {
			for _, sub := range subs {
				sub.poke()
				poked++
			}
		}
		return poked
	}
	for _, sub := range h.connectionMap[signal.FamilyID] {
		sub.poke()
		poked++
	}
	return poked
}

// NotifyFamilyChanged publishes locally. An empty family id is a reactions
// change.
func (h *Hub) NotifyFamilyChanged(ctx context.Context, familyID string) error {
	h.Publish(model.NewFamilySignal(familyID))
	return nil
}
