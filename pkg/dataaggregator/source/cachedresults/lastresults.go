package cachedresults

import (
	"sync/atomic"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
)

type snapshot struct {
	epoch       uint64
	key         string
	connections []*ctdf.Connection
}

// LastResults holds the most recent resolved connection list for the process lifetime.
// Every Invalidate bumps the epoch; a Store carrying an older epoch is dropped, so a lookup
// that started before an invalidation can never repopulate the cache.
type LastResults struct {
	current atomic.Pointer[snapshot]
}

func (l *LastResults) load() (*snapshot, uint64) {
	current := l.current.Load()
	if current == nil {
		return nil, 0
	}

	return current, current.epoch
}

// Epoch is taken by a caller before starting a lookup and handed back to Store
func (l *LastResults) Epoch() uint64 {
	_, epoch := l.load()
	return epoch
}

func (l *LastResults) Invalidate() {
	for {
		current, epoch := l.load()
		if l.current.CompareAndSwap(current, &snapshot{epoch: epoch + 1}) {
			return
		}
	}
}

// Store replaces the cached list if nothing invalidated it since startEpoch
func (l *LastResults) Store(startEpoch uint64, key string, connections []*ctdf.Connection) bool {
	for {
		current, epoch := l.load()
		if epoch != startEpoch {
			return false
		}

		stored := make([]*ctdf.Connection, len(connections))
		copy(stored, connections)

		if l.current.CompareAndSwap(current, &snapshot{epoch: epoch, key: key, connections: stored}) {
			return true
		}
	}
}

// Get returns the cached list and the key it was resolved for
func (l *LastResults) Get() ([]*ctdf.Connection, string) {
	current, _ := l.load()
	if current == nil {
		return nil, ""
	}

	connections := make([]*ctdf.Connection, len(current.connections))
	copy(connections, current.connections)

	return connections, current.key
}

func (l *LastResults) ConnectionAt(index int) (*ctdf.Connection, bool) {
	current, _ := l.load()
	if current == nil || index < 0 || index >= len(current.connections) {
		return nil, false
	}

	return current.connections[index], true
}
