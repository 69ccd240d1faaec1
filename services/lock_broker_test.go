package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (c *captureBroadcaster) RoadLocked(roadID, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "locked:"+roadID+":"+owner)
}

func (c *captureBroadcaster) RoadUnlocked(roadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "unlocked:"+roadID)
}

func (c *captureBroadcaster) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func TestLockBrokerFirstWriterWins(t *testing.T) {
	b := NewLockBroker(nil)

	require.NoError(t, b.Lock("R1", "A"))
	err := b.Lock("R1", "B")
	assert.ErrorIs(t, err, ErrLockConflict)

	// 冲突不改变任何状态
	owner, ok := b.Owner("R1")
	require.True(t, ok)
	assert.Equal(t, "A", owner)
}

func TestLockBrokerIdempotentSameOwner(t *testing.T) {
	b := NewLockBroker(nil)

	require.NoError(t, b.Lock("R1", "A"))
	assert.NoError(t, b.Lock("R1", "A"))
}

func TestLockBrokerUnlock(t *testing.T) {
	b := NewLockBroker(nil)

	require.NoError(t, b.Lock("R1", "A"))
	b.Unlock("R1")

	_, ok := b.Owner("R1")
	assert.False(t, ok)

	// 释放后其他会话可锁
	assert.NoError(t, b.Lock("R1", "B"))
}

func TestLockBrokerUnlockUnknownNoop(t *testing.T) {
	capture := &captureBroadcaster{}
	b := NewLockBroker(capture)

	b.Unlock("R404")
	assert.Empty(t, capture.snapshot())
}

func TestLockBrokerEmptyRoadID(t *testing.T) {
	b := NewLockBroker(nil)
	assert.ErrorIs(t, b.Lock("", "A"), ErrInvalidRoadID)
}

func TestLockBrokerSnapshot(t *testing.T) {
	b := NewLockBroker(nil)
	require.NoError(t, b.Lock("R1", "A"))
	require.NoError(t, b.Lock("R2", "B"))

	snapshot := b.Snapshot()
	assert.Equal(t, map[string]string{"R1": "A", "R2": "B"}, snapshot)

	// 快照是副本
	snapshot["R1"] = "C"
	owner, _ := b.Owner("R1")
	assert.Equal(t, "A", owner)
}

func TestLockBrokerUnlockAllOwned(t *testing.T) {
	b := NewLockBroker(nil)
	require.NoError(t, b.Lock("R1", "A"))
	require.NoError(t, b.Lock("R2", "A"))
	require.NoError(t, b.Lock("R3", "B"))

	released := b.UnlockAllOwned("A")
	assert.ElementsMatch(t, []string{"R1", "R2"}, released)

	_, ok := b.Owner("R3")
	assert.True(t, ok)
}

func TestLockBrokerBroadcastOrder(t *testing.T) {
	capture := &captureBroadcaster{}
	b := NewLockBroker(capture)

	require.NoError(t, b.Lock("R1", "A"))
	b.Unlock("R1")
	require.NoError(t, b.Lock("R1", "B"))

	assert.Equal(t, []string{"locked:R1:A", "unlocked:R1", "locked:R1:B"}, capture.snapshot())
}

// 并发抢锁只有一个会话成功
func TestLockBrokerConcurrentLock(t *testing.T) {
	b := NewLockBroker(&captureBroadcaster{})

	const workers = 32
	var wg sync.WaitGroup
	var winners int32
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := b.Lock("R1", string(rune('A'+id))); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}
