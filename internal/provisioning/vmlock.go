package provisioning

import "sync"

// VMLocks serializes mutations per VM id.
type VMLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewVMLocks returns an empty lock set.
func NewVMLocks() *VMLocks {
	return &VMLocks{locks: make(map[int]*sync.Mutex)}
}

// Lock locks vmid and returns its unlock function.
func (l *VMLocks) Lock(vmid int) func() {
	l.mu.Lock()
	m, ok := l.locks[vmid]
	if !ok {
		m = &sync.Mutex{}
		l.locks[vmid] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
