package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/carlmjohnson/requests"
	"github.com/sirupsen/logrus"
)

// defaultTTSBaseURL is the ElevenLabs-compatible streaming synthesis
// endpoint used when no override is configured.
const defaultTTSBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"

// HTTPStreamProvider synthesizes speech through a chunked HTTP streaming
// endpoint, the default TTS adapter (§4.4, §2a').
type HTTPStreamProvider struct {
	apiKey  string
	voiceID string
	modelID string
	format  Format

	stability       float64
	similarityBoost float64
	speed           float64
	useSpeakerBoost bool
	languageCode    string

	mu       sync.Mutex
	baseURL  string
	stopping atomic.Bool
}

// NewHTTPStreamProvider builds the default TTS adapter from Config.
func NewHTTPStreamProvider(cfg Config) *HTTPStreamProvider {
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}
	stability := cfg.Stability
	if stability == 0 {
		stability = 0.5
	}
	similarityBoost := cfg.SimilarityBoost
	if similarityBoost == 0 {
		similarityBoost = 0.75
	}
	return &HTTPStreamProvider{
		apiKey:          cfg.APIKey,
		voiceID:         cfg.VoiceID,
		modelID:         cfg.ModelID,
		baseURL:         defaultTTSBaseURL,
		stability:       stability,
		similarityBoost: similarityBoost,
		speed:           cfg.Speed,
		useSpeakerBoost: cfg.UseSpeakerBoost,
		languageCode:    cfg.LanguageCode,
		format: Format{
			SampleRate: sampleRate,
			Channels:   1,
			BitDepth:   8,
			Encoding:   "mulaw",
		},
	}
}

// WithBaseURL overrides the synthesis endpoint, mainly for tests.
func (p *HTTPStreamProvider) WithBaseURL(url string) *HTTPStreamProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseURL = url
	return p
}

func (p *HTTPStreamProvider) Format() Format { return p.format }

type ttsRequestBody struct {
	Text          string          `json:"text"`
	ModelID       string          `json:"model_id,omitempty"`
	VoiceSettings *ttsVoiceTuning `json:"voice_settings,omitempty"`
	OutputFormat  string          `json:"output_format,omitempty"`
	LanguageCode  string          `json:"language_code,omitempty"`
}

type ttsVoiceTuning struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Style           float64 `json:"style"`
}

// Synthesize streams mu-law audio for text in chunks of up to 4096 bytes
// (as many as each read of the response body returns), stopping
// early if ctx is cancelled or Stop is called mid-stream.
func (p *HTTPStreamProvider) Synthesize(ctx context.Context, handler Handler, text string) error {
	if p.apiKey == "" {
		return errors.New("synthesizer: API key is required")
	}
	p.stopping.Store(false)

	body := ttsRequestBody{
		Text:         text,
		ModelID:      p.modelID,
		OutputFormat: "ulaw_8000",
		LanguageCode: p.languageCode,
	}
	// v3-series models reject the legacy voice_settings payload.
	if !IsV3Model(p.modelID) {
		body.VoiceSettings = &ttsVoiceTuning{
			Stability:       p.stability,
			SimilarityBoost: p.similarityBoost,
			Speed:           p.speed,
			UseSpeakerBoost: p.useSpeakerBoost,
			Style:           0,
		}
	}

	p.mu.Lock()
	url := fmt.Sprintf("%s/%s/stream", p.baseURL, p.voiceID)
	p.mu.Unlock()

	var streamErr error
	err := requests.
		URL(url).
		Header("xi-api-key", p.apiKey).
		Header("Content-Type", "application/json").
		BodyJSON(&body).
		Handle(func(resp *http.Response) error {
			if resp.StatusCode != http.StatusOK {
				data, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("synthesizer: tts endpoint returned %d: %s", resp.StatusCode, string(data))
			}
			streamErr = p.deliver(ctx, resp.Body, handler)
			return streamErr
		}).
		Fetch(ctx)
	if err != nil {
		logrus.WithError(err).Error("synthesizer: synthesis request failed")
		return err
	}
	return streamErr
}

func (p *HTTPStreamProvider) deliver(ctx context.Context, body io.Reader, handler Handler) error {
	buf := make([]byte, 4096)
	for {
		if p.stopping.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			handler.OnMessage(chunk)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Stop aborts any in-flight Synthesize call at its next chunk boundary.
func (p *HTTPStreamProvider) Stop() {
	p.stopping.Store(true)
}

func (p *HTTPStreamProvider) Close() error { return nil }
