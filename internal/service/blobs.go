package service

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobLocatorPrefix starts every session-scoped playable locator.
const BlobLocatorPrefix = "blob:musicflow/"

// BlobRegistry maps session-scoped locators to in-memory audio payloads.
// Locators are not stable across sessions: the library re-issues them when it
// reloads uploads, the way a browser re-creates object URLs.
type BlobRegistry struct {
	mu        sync.RWMutex
	byLocator map[string][]byte
	byTrack   map[string]string
}

// NewBlobRegistry creates an empty registry.
func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{
		byLocator: make(map[string][]byte),
		byTrack:   make(map[string]string),
	}
}

// Register issues a fresh locator for trackID's payload, releasing any
// locator the track held before.
func (r *BlobRegistry) Register(trackID string, data []byte) string {
	locator := BlobLocatorPrefix + uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byTrack[trackID]; ok {
		delete(r.byLocator, old)
	}
	r.byTrack[trackID] = locator
	r.byLocator[locator] = data
	return locator
}

// Release drops trackID's locator. Unknown ids are ignored.
func (r *BlobRegistry) Release(trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if locator, ok := r.byTrack[trackID]; ok {
		delete(r.byLocator, locator)
		delete(r.byTrack, trackID)
	}
}

// Resolve returns the payload behind locator.
func (r *BlobRegistry) Resolve(locator string) ([]byte, bool) {
	if !IsBlobLocator(locator) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.byLocator[locator]
	return data, ok
}

// Len returns the number of live locators.
func (r *BlobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byLocator)
}

// IsBlobLocator reports whether s is a session blob locator.
func IsBlobLocator(s string) bool {
	return strings.HasPrefix(s, BlobLocatorPrefix)
}
