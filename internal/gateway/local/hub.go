package local

import "sync"

// topic fans snapshots out to the subscribers of one key (a user id).
// Callbacks are copied under the lock and run outside it, so a callback may
// unsubscribe itself.
type topic[T any] struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(T)
}

func newTopic[T any]() *topic[T] {
	return &topic[T]{subs: make(map[string]map[int]func(T))}
}

func (t *topic[T]) add(key string, fn func(T)) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	if t.subs[key] == nil {
		t.subs[key] = make(map[int]func(T))
	}
	t.subs[key][t.next] = fn
	return t.next
}

func (t *topic[T]) remove(key string, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs[key], id)
	if len(t.subs[key]) == 0 {
		delete(t.subs, key)
	}
}

func (t *topic[T]) has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[key]) > 0
}

func (t *topic[T]) count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[key])
}

func (t *topic[T]) publish(key string, v T) {
	t.mu.Lock()
	fns := make([]func(T), 0, len(t.subs[key]))
	for _, fn := range t.subs[key] {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
