package recognizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/sirupsen/logrus"
)

// DeepgramProvider streams mu-law telephony audio to Deepgram's live
// transcription websocket and relays transcript/utterance-end events.
type DeepgramProvider struct {
	apiKey string
	opts   Options

	mu sync.Mutex
	ws *client.WSCallback
	cb *dgCallback
}

// NewDeepgramProvider builds a Deepgram streaming adapter for the given API key.
func NewDeepgramProvider(apiKey string, opts Options) *DeepgramProvider {
	return &DeepgramProvider{apiKey: apiKey, opts: opts}
}

func (p *DeepgramProvider) Start(ctx context.Context, onEvent func(Event), onError func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cOptions := interfaces.ClientOptions{
		APIKey: p.apiKey,
	}
	tOptions := interfaces.LiveTranscriptionOptions{
		Model:          "nova-2-phonecall",
		Language:       p.opts.Language,
		Encoding:       "mulaw",
		SampleRate:     p.opts.SampleRate,
		Channels:       1,
		InterimResults: p.opts.InterimResults,
		Endpointing:    fmt.Sprintf("%d", p.opts.EndpointingMs),
		UtteranceEndMs: fmt.Sprintf("%d", p.opts.UtteranceEndMs),
		VadEvents:      true,
	}

	p.cb = &dgCallback{onEvent: onEvent, onError: onError}

	ws, err := client.NewWSUsingCallback(ctx, p.apiKey, &cOptions, &tOptions, p.cb)
	if err != nil {
		return fmt.Errorf("deepgram: connect: %w", err)
	}
	if !ws.Connect() {
		return fmt.Errorf("deepgram: connect refused")
	}
	p.ws = ws
	return nil
}

func (p *DeepgramProvider) SendAudio(pcmu []byte) error {
	p.mu.Lock()
	ws := p.ws
	p.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("deepgram: not started")
	}
	_, err := ws.Write(pcmu)
	return err
}

func (p *DeepgramProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ws != nil {
		p.ws.Stop()
		p.ws = nil
	}
	return nil
}

// dgCallback adapts the SDK's message-callback interface to our Event shape.
type dgCallback struct {
	onEvent func(Event)
	onError func(error)
}

func (c *dgCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	c.onEvent(Event{Text: alt.Transcript, IsFinal: mr.IsFinal})
	return nil
}

func (c *dgCallback) UtteranceEnd(_ *msginterfaces.UtteranceEndResponse) error {
	c.onEvent(Event{UtteranceEnd: true})
	return nil
}

func (c *dgCallback) Error(er *msginterfaces.ErrorResponse) error {
	err := fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg)
	logrus.WithError(err).Warn("deepgram stream error")
	if c.onError != nil {
		c.onError(err)
	}
	return nil
}

func (c *dgCallback) Open(_ *msginterfaces.OpenResponse) error    { return nil }
func (c *dgCallback) Close(_ *msginterfaces.CloseResponse) error  { return nil }
func (c *dgCallback) Metadata(_ *msginterfaces.MetadataResponse) error {
	return nil
}
func (c *dgCallback) SpeechStarted(_ *msginterfaces.SpeechStartedResponse) error {
	return nil
}
func (c *dgCallback) UnhandledEvent(_ []byte) error { return nil }
