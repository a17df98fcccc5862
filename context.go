package rtmp

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

type registryEntry struct {
	group *Group
	refs  int
}

// GroupRegistry owns the Groups of the server, keyed by "app/name". Every user of a Group (a session,
// an HTTP-FLV subscriber, a puller) holds a reference through Acquire and gives it back with Release;
// the Group is disposed and forgotten when the last reference goes away.
type GroupRegistry struct {
	logger *zap.Logger

	mu     sync.Mutex
	groups map[string]*registryEntry
}

func NewGroupRegistry(logger *zap.Logger) *GroupRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupRegistry{
		logger: logger,
		groups: make(map[string]*registryEntry),
	}
}

// Acquire returns the Group for key, creating it if needed, and takes a reference on it.
func (r *GroupRegistry) Acquire(key string) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.groups[key]
	if !ok {
		entry = &registryEntry{group: NewGroup(r.logger, key)}
		r.groups[key] = entry
		r.logger.Debug("[registry] group created", zap.String("stream", key))
	}
	entry.refs++
	return entry.group
}

// Release gives back a reference taken with Acquire.
func (r *GroupRegistry) Release(key string) {
	r.mu.Lock()
	entry, ok := r.groups[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.groups, key)
	r.mu.Unlock()

	entry.group.Dispose()
	r.logger.Debug("[registry] group removed", zap.String("stream", key))
}

// Get returns the Group for key without creating it or taking a reference.
func (r *GroupRegistry) Get(key string) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.groups[key]; ok {
		return entry.group
	}
	return nil
}

func (r *GroupRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

// Keys returns the keys of all Groups, sorted.
func (r *GroupRegistry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.groups))
	for key := range r.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
