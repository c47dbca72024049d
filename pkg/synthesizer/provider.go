// Package synthesizer streams synthesized speech audio for a committed
// assistant reply, the TTS leg of the call pipeline (§4.4).
package synthesizer

import (
	"context"
	"errors"
)

// Handler receives synthesized audio as it arrives. OnMessage may be called
// multiple times per Synthesize call for chunked delivery.
type Handler interface {
	OnMessage(audio []byte)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(audio []byte)

func (f HandlerFunc) OnMessage(audio []byte) { f(audio) }

// Provider synthesizes text into audio delivered through handler. Synthesize
// must return promptly once ctx is cancelled or Stop is called, mid-chunk if
// necessary, to support the orchestrator's barge-in abort (§4.9).
type Provider interface {
	Synthesize(ctx context.Context, handler Handler, text string) error
	Format() Format
	Stop()
	Close() error
}

// Format describes the audio the provider emits.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Encoding   string // "mulaw", "pcm16", "mp3"
}

// ProviderType names a TTS backend.
type ProviderType string

const (
	ProviderTypeElevenLabs ProviderType = "elevenlabs"
	ProviderTypePolly      ProviderType = "polly"
)

var errUnknownProvider = errors.New("synthesizer: unknown provider")

// Factory builds Provider instances by vendor name, mirroring the
// transcriber factory's registry shape (pkg/recognizer/provider.go).
type Factory struct {
	creators map[string]func(Config) (Provider, error)
}

// Config carries the settings needed to construct any registered provider.
// Fields not applicable to a given vendor are ignored.
type Config struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	Region     string
	AccessKey  string
	SecretKey  string
	SampleRate int

	// Stability, SimilarityBoost, Speed, and UseSpeakerBoost are the voice
	// tuning knobs forwarded to the model as voice_settings (§4.4); ignored
	// for v3-series models, which reject the legacy payload (IsV3Model).
	Stability       float64
	SimilarityBoost float64
	Speed           float64
	UseSpeakerBoost bool

	// LanguageCode is forwarded as language_code when non-empty — set it
	// for non-English or Hinglish-mode calls (§4.4).
	LanguageCode string
}

// NewFactory returns a Factory with the default set of providers registered.
func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]func(Config) (Provider, error))}
	f.Register(string(ProviderTypeElevenLabs), func(cfg Config) (Provider, error) {
		return NewHTTPStreamProvider(cfg), nil
	})
	f.Register(string(ProviderTypePolly), NewPollyProvider)
	return f
}

// Register adds or replaces a named provider constructor.
func (f *Factory) Register(name string, ctor func(Config) (Provider, error)) {
	f.creators[name] = ctor
}

// Create builds the named provider, defaulting to ElevenLabs-style HTTP
// streaming when name is empty or unrecognized.
func (f *Factory) Create(name string, cfg Config) (Provider, error) {
	ctor, ok := f.creators[name]
	if !ok {
		ctor, ok = f.creators[string(ProviderTypeElevenLabs)]
		if !ok {
			return nil, errUnknownProvider
		}
	}
	return ctor(cfg)
}

// IsV3Model reports whether modelID names an ElevenLabs v3-series model,
// which rejects the legacy voice-settings payload (§4.4).
func IsV3Model(modelID string) bool {
	return len(modelID) >= 3 && modelID[len(modelID)-3:] == "_v3"
}
