package recognizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	tstypes "github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/sirupsen/logrus"

	"github.com/code-100-precent/LingEcho/pkg/codec"
)

// AWSTranscribeProvider streams mu-law telephony audio to Amazon Transcribe's
// streaming API, the second STT vendor behind the Provider interface.
type AWSTranscribeProvider struct {
	opts Options

	mu     sync.Mutex
	stream *transcribestreaming.StartStreamTranscriptionEventStream
	cancel context.CancelFunc
}

// NewAWSTranscribeProvider builds an AWS Transcribe streaming adapter.
func NewAWSTranscribeProvider(opts Options) *AWSTranscribeProvider {
	return &AWSTranscribeProvider{opts: opts}
}

func (p *AWSTranscribeProvider) Start(ctx context.Context, onEvent func(Event), onError func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion("us-east-1"))
	if err != nil {
		return fmt.Errorf("aws transcribe: load config: %w", err)
	}
	svc := transcribestreaming.NewFromConfig(cfg)

	sampleRate := int32(p.opts.SampleRate)
	langCode := tstypes.LanguageCodeEnUs

	out, err := svc.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         langCode,
		MediaSampleRateHertz: aws.Int32(sampleRate),
		MediaEncoding:        tstypes.MediaEncodingPcm, // SendAudio repacks mu-law to linear PCM16 before writing
	})
	if err != nil {
		return fmt.Errorf("aws transcribe: start stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	p.stream = out.GetStream()
	p.cancel = cancel

	go p.readLoop(streamCtx, onEvent, onError)
	return nil
}

func (p *AWSTranscribeProvider) readLoop(ctx context.Context, onEvent func(Event), onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.stream.Events():
			if !ok {
				return
			}
			transcriptEvent, ok := event.(*tstypes.TranscriptResultStreamMemberTranscriptEvent)
			if !ok {
				continue
			}
			for _, result := range transcriptEvent.Value.Transcript.Results {
				if len(result.Alternatives) == 0 {
					continue
				}
				onEvent(Event{
					Text:    aws.ToString(result.Alternatives[0].Transcript),
					IsFinal: !result.IsPartial,
				})
			}
		}
	}
}

func (p *AWSTranscribeProvider) SendAudio(pcmu []byte) error {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("aws transcribe: not started")
	}
	pcm16 := codec.PCMUToPCM16LE(pcmu)
	return stream.Send(context.Background(), &tstypes.AudioStreamMemberAudioEvent{
		Value: tstypes.AudioEvent{AudioChunk: pcm16},
	})
}

func (p *AWSTranscribeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.stream != nil {
		if err := p.stream.Err(); err != nil {
			logrus.WithError(err).Warn("aws transcribe stream ended with error")
		}
		return p.stream.Close()
	}
	return nil
}
