// Package recording accumulates per-call caller/agent audio and produces a
// mixed WAV recording at call end (§4.5).
package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/code-100-precent/LingEcho/pkg/codec"
)

const (
	registryTTL             = 2 * time.Hour
	registryCleanupInterval = 10 * time.Minute
)

// Uploader persists a finished recording's bytes and returns a retrievable
// URL. Cloud-storage business logic is out of scope here; the default
// NoopUploader satisfies the interface without doing any I/O.
type Uploader interface {
	Upload(ctx context.Context, callID string, wav []byte) (url string, err error)
}

// NoopUploader discards the recording and returns no URL, the default used
// when no object-store collaborator is configured.
type NoopUploader struct{}

func (NoopUploader) Upload(_ context.Context, _ string, _ []byte) (string, error) {
	return "", nil
}

// Recording buffers one call's caller and agent audio as it streams in.
type Recording struct {
	CallID string

	mu     sync.Mutex
	caller []byte
	agent  []byte
}

// AppendCaller appends inbound (caller-side) mu-law audio.
func (r *Recording) AppendCaller(mulaw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caller = append(r.caller, mulaw...)
}

// AppendAgent appends outbound (agent-side) mu-law audio.
func (r *Recording) AppendAgent(mulaw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agent = append(r.agent, mulaw...)
}

// WAV mixes the caller and agent channels and wraps them in a mu-law WAV
// container.
func (r *Recording) WAV() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	mixed := codec.MixMuLaw(r.caller, r.agent)
	return codec.WrapMuLawWAV(mixed)
}

// Registry is the process-wide activeRecordings map keyed by call-id,
// guarded internally and swept on a TTL so a crashed call's buffer does not
// leak forever (§5 Shared resources).
type Registry struct {
	uploader Uploader
	cache    *gocache.Cache

	mu   sync.RWMutex
	byID map[string]*Recording
}

// NewRegistry builds a Registry. A nil uploader defaults to NoopUploader.
func NewRegistry(uploader Uploader) *Registry {
	if uploader == nil {
		uploader = NoopUploader{}
	}
	c := gocache.New(registryTTL, registryCleanupInterval)
	r := &Registry{uploader: uploader, cache: c, byID: make(map[string]*Recording)}
	c.OnEvicted(func(callID string, _ interface{}) {
		r.mu.Lock()
		delete(r.byID, callID)
		r.mu.Unlock()
	})
	return r
}

// Start creates and registers a new Recording for callID.
func (r *Registry) Start(callID string) *Recording {
	rec := &Recording{CallID: callID}
	r.mu.Lock()
	r.byID[callID] = rec
	r.mu.Unlock()
	r.cache.SetDefault(callID, struct{}{})
	return rec
}

// Get returns the Recording for callID, if still registered.
func (r *Registry) Get(callID string) (*Recording, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[callID]
	return rec, ok
}

// Finish mixes, wraps, and hands the recording off to the uploader,
// removing it from the registry regardless of upload outcome.
func (r *Registry) Finish(ctx context.Context, callID string) (string, error) {
	rec, ok := r.Get(callID)
	r.mu.Lock()
	delete(r.byID, callID)
	r.mu.Unlock()
	r.cache.Delete(callID)

	if !ok {
		return "", fmt.Errorf("recording: no active recording for call %s", callID)
	}

	wav := rec.WAV()
	url, err := r.uploader.Upload(ctx, callID, wav)
	if err != nil {
		logrus.WithError(err).WithField("call_id", callID).Warn("recording: upload failed")
		return "", err
	}
	return url, nil
}
