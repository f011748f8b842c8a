// ABOUTME: Bounded, time-windowed set of claimed request keys
// ABOUTME: Backs Idempotency-Key handling so retried writes are not applied twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	key string
	at  time.Time
}

// Keys is a set of keys that expire ttl after they were claimed. When more
// than maxKeys keys are live the oldest claim is dropped. Safe for concurrent use.
type Keys struct {
	mu     sync.Mutex
	claims map[string]*list.Element
	order  *list.List // *claim, oldest first
	ttl    time.Duration
	max    int
	now    func() time.Time
}

// NewKeys creates an empty set.
func NewKeys(ttl time.Duration, maxKeys int) *Keys {
	if maxKeys < 1 {
		maxKeys = 1
	}
	return &Keys{
		claims: make(map[string]*list.Element),
		order:  list.New(),
		ttl:    ttl,
		max:    maxKeys,
		now:    time.Now,
	}
}

// Claim records key and reports true, or reports false when key is already
// claimed and has not expired.
func (k *Keys) Claim(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	k.expireLocked(now)

	if _, ok := k.claims[key]; ok {
		return false
	}

	if k.order.Len() >= k.max {
		k.removeLocked(k.order.Front())
	}
	k.claims[key] = k.order.PushBack(&claim{key: key, at: now})
	return true
}

// Release forgets key so it can be claimed again.
func (k *Keys) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if el, ok := k.claims[key]; ok {
		k.removeLocked(el)
	}
}

// Len returns the number of live claims.
func (k *Keys) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.expireLocked(k.now())
	return k.order.Len()
}

// expireLocked drops claims older than ttl. Claims are ordered by time, so it
// stops at the first live one.
func (k *Keys) expireLocked(now time.Time) {
	for el := k.order.Front(); el != nil; el = k.order.Front() {
		if now.Sub(el.Value.(*claim).at) < k.ttl {
			return
		}
		k.removeLocked(el)
	}
}

func (k *Keys) removeLocked(el *list.Element) {
	c := k.order.Remove(el).(*claim)
	delete(k.claims, c.key)
}
