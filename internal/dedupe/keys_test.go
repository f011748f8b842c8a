package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time forward.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestKeys(ttl time.Duration, max int) (*Keys, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	k := NewKeys(ttl, max)
	k.now = clock.Now
	return k, clock
}

func TestKeys_ClaimOnce(t *testing.T) {
	k, _ := newTestKeys(time.Minute, 10)

	assert.True(t, k.Claim("a"))
	assert.False(t, k.Claim("a"))
	assert.True(t, k.Claim("b"))
	assert.Equal(t, 2, k.Len())
}

func TestKeys_Expiry(t *testing.T) {
	k, clock := newTestKeys(time.Minute, 10)

	assert.True(t, k.Claim("a"))
	clock.Advance(30 * time.Second)
	assert.True(t, k.Claim("b"))

	clock.Advance(30 * time.Second)
	assert.True(t, k.Claim("a"), "a expired and can be claimed again")
	assert.False(t, k.Claim("b"))
	assert.Equal(t, 2, k.Len())
}

func TestKeys_Release(t *testing.T) {
	k, _ := newTestKeys(time.Minute, 10)

	assert.True(t, k.Claim("a"))
	k.Release("a")
	assert.Equal(t, 0, k.Len())
	assert.True(t, k.Claim("a"))

	k.Release("missing")
	assert.Equal(t, 1, k.Len())
}

func TestKeys_EvictsOldestAtCapacity(t *testing.T) {
	k, clock := newTestKeys(time.Hour, 3)

	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, k.Claim(key))
		clock.Advance(time.Second)
	}
	assert.True(t, k.Claim("d"))
	assert.Equal(t, 3, k.Len())

	assert.True(t, k.Claim("a"), "a was evicted")
	assert.False(t, k.Claim("d"))
}

func TestKeys_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	k := NewKeys(time.Minute, 1000)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if k.Claim("same") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestKeys_ManyKeys(t *testing.T) {
	k := NewKeys(time.Minute, 100)
	for i := 0; i < 250; i++ {
		k.Claim(fmt.Sprintf("key-%d", i))
	}
	assert.Equal(t, 100, k.Len())
}
