package notify

import (
	"github.com/gosuda/skillmatrix/internal/messenger"
)

// Registry is a map-based MessengerRegistry keyed by Messenger.Platform.
type Registry struct {
	messengers map[string]messenger.Messenger
}

// NewRegistry creates a Registry holding the given messengers.
func NewRegistry(ms ...messenger.Messenger) *Registry {
	r := &Registry{
		messengers: make(map[string]messenger.Messenger, len(ms)),
	}
	for _, m := range ms {
		r.Register(m)
	}
	return r
}

// Register adds m under its platform name, replacing any previous one.
func (r *Registry) Register(m messenger.Messenger) {
	r.messengers[m.Platform()] = m
}

// Get returns the messenger for the given platform, or false if not registered.
func (r *Registry) Get(platform string) (messenger.Messenger, bool) {
	m, ok := r.messengers[platform]
	return m, ok
}

// Len reports how many platforms are registered.
func (r *Registry) Len() int {
	return len(r.messengers)
}
