package server

import (
	"sync"

	"github.com/npezzotti/go-devhub/internal/types"
)

// Presence maps connection ids to the profile each connection last announced.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]types.Profile
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]types.Profile)}
}

// Announce records profile for connId, overwriting any previous entry.
// It reports whether an entry already existed.
func (p *Presence) Announce(connId string, profile types.Profile) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, existed := p.entries[connId]
	p.entries[connId] = profile
	return existed
}

func (p *Presence) Remove(connId string) (types.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ok := p.entries[connId]
	if ok {
		delete(p.entries, connId)
	}
	return profile, ok
}

func (p *Presence) Get(connId string) (types.Profile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	profile, ok := p.entries[connId]
	return profile, ok
}

// Snapshot returns every announced profile in no particular order.
func (p *Presence) Snapshot() []types.Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()

	profiles := make([]types.Profile, 0, len(p.entries))
	for _, profile := range p.entries {
		profiles = append(profiles, profile)
	}
	return profiles
}

func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.entries)
}
