package sharedctx

import "sync"

// mutexMap hands out one mutex per key.
type mutexMap struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func newMutexMap() *mutexMap {
	return &mutexMap{mutexes: make(map[string]*sync.Mutex)}
}

func (m *mutexMap) lock(key string) {
	m.get(key).Lock()
}

func (m *mutexMap) unlock(key string) {
	m.get(key).Unlock()
}

func (m *mutexMap) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}

// forget drops the mutex for key. The caller must not hold it.
func (m *mutexMap) forget(key string) {
	m.mu.Lock()
	delete(m.mutexes, key)
	m.mu.Unlock()
}
