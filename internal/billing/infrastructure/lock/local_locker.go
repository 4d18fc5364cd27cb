package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/memberly/internal/billing/application"
	"github.com/google/uuid"
)

// LocalLocker serializes reconciliation inside one process. It is used when
// no Redis is configured.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

var _ application.SubscriptionLocker = (*LocalLocker)(nil)

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*entry)}
}

// Lock waits for the subscription's slot or ctx.
func (l *LocalLocker) Lock(ctx context.Context, subscriptionID uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[subscriptionID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[subscriptionID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(subscriptionID, e)
		return nil, fmt.Errorf("%w: %w", application.ErrLockNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(subscriptionID, e)
		})
	}, nil
}

// drop forgets the entry once nobody holds or waits on it.
func (l *LocalLocker) drop(id uuid.UUID, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}
