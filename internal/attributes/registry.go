// Package attributes holds the SMS attribute registry that SetSMSAttributes
// writes and Publish reads.
package attributes

import (
	"maps"
	"slices"
	"sync"
)

// Names of the fixed registry slots.
const (
	DefaultSenderID     = "DefaultSenderID"
	DefaultSMSType      = "DefaultSMSType"
	UsageReportS3Bucket = "UsageReportS3Bucket"
)

// Defaults returns the initial value of every fixed slot.
func Defaults() map[string]string {
	return map[string]string{
		DefaultSenderID:     "SMSHOG",
		DefaultSMSType:      "Transactional",
		UsageReportS3Bucket: "",
	}
}

// Registry is a fixed set of named string slots.
//
// Only slot names known at construction can ever be written: [Registry.Apply]
// silently drops every other name. Readers always receive copies.
// A Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	slots map[string]string
}

// NewRegistry returns a registry holding the fixed slots at their defaults,
// plus an empty slot for each admitted name. Admitting a fixed name keeps
// its default.
func NewRegistry(admitted ...string) *Registry {
	slots := Defaults()
	for _, name := range admitted {
		if name == "" {
			continue
		}
		if _, ok := slots[name]; !ok {
			slots[name] = ""
		}
	}
	return &Registry{slots: slots}
}

// Apply overwrites every known slot named in updates and ignores the rest.
// It returns the names that were written, sorted.
func (r *Registry) Apply(updates map[string]string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var applied []string
	for name, value := range updates {
		if _, ok := r.slots[name]; !ok {
			continue
		}
		r.slots[name] = value
		applied = append(applied, name)
	}
	slices.Sort(applied)
	return applied
}

// Snapshot returns a copy of all slots.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.slots)
}

// Get returns the value of a slot, or "" if the name is unknown.
func (r *Registry) Get(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[name]
}

// Known reports whether name is a slot of this registry.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.slots[name]
	return ok
}

// SenderID returns the DefaultSenderID slot stamped on published messages.
func (r *Registry) SenderID() string { return r.Get(DefaultSenderID) }

// SMSType returns the DefaultSMSType slot stamped on published messages.
func (r *Registry) SMSType() string { return r.Get(DefaultSMSType) }
