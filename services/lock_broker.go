// services/lock_broker.go
package services

import (
	"sync"
)

// LockBroadcaster 锁事件出口，由传输层注入
// 事件在broker互斥锁内发出，广播顺序即处理顺序
type LockBroadcaster interface {
	RoadLocked(roadID, owner string)
	RoadUnlocked(roadID string)
}

// LockBroker 要素级独占编辑锁登记表，仅在进程内维护，属协商锁
// 先到先得：已被他人持有的锁请求直接拒绝，不转移所有权
type LockBroker struct {
	mu          sync.RWMutex
	locks       map[string]string
	broadcaster LockBroadcaster
}

func NewLockBroker(broadcaster LockBroadcaster) *LockBroker {
	return &LockBroker{
		locks:       make(map[string]string),
		broadcaster: broadcaster,
	}
}

// Lock 申请锁，同一持有者重复申请幂等
func (b *LockBroker) Lock(roadID, owner string) error {
	if roadID == "" {
		return ErrInvalidRoadID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if current, ok := b.locks[roadID]; ok {
		if current == owner {
			return nil
		}
		return ErrLockConflict
	}

	b.locks[roadID] = owner
	if b.broadcaster != nil {
		b.broadcaster.RoadLocked(roadID, owner)
	}
	return nil
}

// Unlock 释放锁，未锁定时为空操作
func (b *LockBroker) Unlock(roadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.locks[roadID]; !ok {
		return
	}
	delete(b.locks, roadID)
	if b.broadcaster != nil {
		b.broadcaster.RoadUnlocked(roadID)
	}
}

// Owner 查询当前持有者
func (b *LockBroker) Owner(roadID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	owner, ok := b.locks[roadID]
	return owner, ok
}

// Snapshot 全量锁状态，用于会话接入时的initial-locks
func (b *LockBroker) Snapshot() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snapshot := make(map[string]string, len(b.locks))
	for roadID, owner := range b.locks {
		snapshot[roadID] = owner
	}
	return snapshot
}

// UnlockAllOwned 会话断开时释放其全部持锁，避免要素永久锁死
func (b *LockBroker) UnlockAllOwned(owner string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var released []string
	for roadID, current := range b.locks {
		if current != owner {
			continue
		}
		delete(b.locks, roadID)
		released = append(released, roadID)
		if b.broadcaster != nil {
			b.broadcaster.RoadUnlocked(roadID)
		}
	}
	return released
}
