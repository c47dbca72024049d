package synthesizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingHandler struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (c *collectingHandler) OnMessage(audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, append([]byte(nil), audio...))
}

func (c *collectingHandler) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, chunk := range c.chunks {
		n += len(chunk)
	}
	return n
}

func TestHTTPStreamProviderDeliversChunks(t *testing.T) {
	payload := make([]byte, 9000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	defer srv.Close()

	p := NewHTTPStreamProvider(Config{APIKey: "key", VoiceID: "voice-1"}).WithBaseURL(srv.URL)
	handler := &collectingHandler{}

	err := p.Synthesize(context.Background(), handler, "hello world")
	require.NoError(t, err)
	assert.Equal(t, len(payload), handler.total())
	assert.Greater(t, len(handler.chunks), 1, "large payload should arrive as multiple chunks")
}

func TestHTTPStreamProviderRequiresAPIKey(t *testing.T) {
	p := NewHTTPStreamProvider(Config{VoiceID: "voice-1"})
	err := p.Synthesize(context.Background(), &collectingHandler{}, "hi")
	assert.Error(t, err)
}

func TestHTTPStreamProviderStopEndsDelivery(t *testing.T) {
	firstSeen := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		w.Write([]byte{0x7F})
		if flusher != nil {
			flusher.Flush()
		}
		// Hold the rest of the stream until the client has seen the first chunk.
		select {
		case <-firstSeen:
		case <-time.After(time.Second):
		}
		for i := 0; i < 99; i++ {
			w.Write([]byte{0x7F})
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	p := NewHTTPStreamProvider(Config{APIKey: "key", VoiceID: "voice-1"}).WithBaseURL(srv.URL)

	handler := &collectingHandler{}
	var once sync.Once
	stopOnFirst := HandlerFunc(func(audio []byte) {
		handler.OnMessage(audio)
		p.Stop()
		once.Do(func() { close(firstSeen) })
	})

	err := p.Synthesize(context.Background(), stopOnFirst, "hello")
	require.NoError(t, err)
	assert.Less(t, handler.total(), 100, "Stop mid-stream should end delivery before the whole stream arrives")
}

func TestHTTPStreamProviderSendsVoiceTuningAndLanguage(t *testing.T) {
	var got ttsRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPStreamProvider(Config{
		APIKey:          "key",
		VoiceID:         "voice-1",
		Stability:       0.4,
		SimilarityBoost: 0.8,
		Speed:           1.1,
		UseSpeakerBoost: true,
		LanguageCode:    "hi-en",
	}).WithBaseURL(srv.URL)

	err := p.Synthesize(context.Background(), &collectingHandler{}, "hello")
	require.NoError(t, err)

	require.NotNil(t, got.VoiceSettings)
	assert.Equal(t, 0.4, got.VoiceSettings.Stability)
	assert.Equal(t, 0.8, got.VoiceSettings.SimilarityBoost)
	assert.Equal(t, 1.1, got.VoiceSettings.Speed)
	assert.True(t, got.VoiceSettings.UseSpeakerBoost)
	assert.Equal(t, 0.0, got.VoiceSettings.Style)
	assert.Equal(t, "hi-en", got.LanguageCode)
}

func TestHTTPStreamProviderOmitsVoiceSettingsForV3Model(t *testing.T) {
	var got ttsRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPStreamProvider(Config{APIKey: "key", VoiceID: "voice-1", ModelID: "eleven_turbo_v3"}).WithBaseURL(srv.URL)

	err := p.Synthesize(context.Background(), &collectingHandler{}, "hello")
	require.NoError(t, err)
	assert.Nil(t, got.VoiceSettings)
}

func TestIsV3Model(t *testing.T) {
	assert.True(t, IsV3Model("eleven_turbo_v3"))
	assert.False(t, IsV3Model("eleven_monolingual_v1"))
}
