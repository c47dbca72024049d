// Package recognizer opens a streaming speech-to-text connection and turns
// its interim/final transcript events into committed user utterances.
package recognizer

import (
	"context"
	"fmt"
)

// Event is a single transcript event surfaced by a Provider.
type Event struct {
	Text         string
	IsFinal      bool
	UtteranceEnd bool // recognizer-detected end of a speech segment
}

// Provider is a streaming STT vendor connection: audio in, transcript events
// out. Implementations own their own network connection and goroutines.
type Provider interface {
	// Start opens the stream and begins delivering events to onEvent until
	// the context is canceled or Close is called. onError receives stream
	// errors as the vendor reports them and may be called more than once.
	Start(ctx context.Context, onEvent func(Event), onError func(error)) error
	SendAudio(pcmu []byte) error
	Close() error
}

// Options configures a streaming recognizer session, independent of vendor.
type Options struct {
	SampleRate     int // 8000 for mu-law telephony audio
	Language       string
	InterimResults bool
	EndpointingMs  int
	UtteranceEndMs int
}

// Factory builds a Provider for a given vendor name. Unknown vendors return
// an error rather than panicking, matching the reference factory's
// registry-miss behavior.
type Factory struct {
	creators map[string]func(apiKey string, opts Options) (Provider, error)
}

// NewFactory builds a Factory with the Deepgram and AWS Transcribe adapters
// registered, mirroring the reference stack's multi-vendor STT factory.
func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]func(string, Options) (Provider, error))}
	f.Register("deepgram", func(apiKey string, opts Options) (Provider, error) {
		return NewDeepgramProvider(apiKey, opts), nil
	})
	f.Register("aws", func(apiKey string, opts Options) (Provider, error) {
		return NewAWSTranscribeProvider(opts), nil
	})
	return f
}

// Register adds or replaces a vendor creator.
func (f *Factory) Register(vendor string, creator func(apiKey string, opts Options) (Provider, error)) {
	f.creators[vendor] = creator
}

// Create builds a Provider for the named vendor.
func (f *Factory) Create(vendor, apiKey string, opts Options) (Provider, error) {
	creator, ok := f.creators[vendor]
	if !ok {
		return nil, fmt.Errorf("recognizer: vendor %q not supported", vendor)
	}
	return creator(apiKey, opts)
}
