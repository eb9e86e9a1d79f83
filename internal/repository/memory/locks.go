package memory

import (
	"context"
	"sync"
)

// keyedMutex - набор эксклюзивных блокировок по строковому ключу.
// Ожидание прерывается отменой контекста.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) acquireRef(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) dropRef(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock ждёт освобождения ключа или отмены ctx
func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := k.acquireRef(key)

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.dropRef(key, l)
		return ctx.Err()
	}
}

// Unlock освобождает ключ, захваченный Lock
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		return
	}

	<-l.ch
	k.dropRef(key, l)
}
