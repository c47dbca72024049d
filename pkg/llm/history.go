package llm

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultRegistrySize bounds how many concurrent calls' summarization notes
// are retained in the process-wide registry before the oldest is evicted.
const defaultRegistrySize = 512

// Registry tracks each call's most recent summarization note in a bounded
// LRU, so a long-running process doesn't accumulate unbounded history notes
// across many concurrent calls (§4.3).
type Registry struct {
	cache *lru.Cache[string, string]
}

// NewRegistry builds a Registry sized for defaultRegistrySize concurrent calls.
func NewRegistry() *Registry {
	cache, _ := lru.New[string, string](defaultRegistrySize)
	return &Registry{cache: cache}
}

// Put records the latest summarization note for a call.
func (r *Registry) Put(callID, note string) {
	r.cache.Add(callID, note)
}

// Get returns the latest summarization note for a call, if any.
func (r *Registry) Get(callID string) (string, bool) {
	return r.cache.Get(callID)
}

// Remove drops a call's entry, called when the call ends.
func (r *Registry) Remove(callID string) {
	r.cache.Remove(callID)
}
