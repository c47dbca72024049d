package synthesizer

import (
	"context"
	"io"
	"sync/atomic"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/code-100-precent/LingEcho/pkg/codec"
)

// PollyProvider synthesizes speech through Amazon Polly, the alternate TTS
// adapter (§4.4, §2a').
type PollyProvider struct {
	client   *polly.Client
	voiceID  string
	format   Format
	stopping atomic.Bool
}

// NewPollyProvider builds a Polly-backed Provider from Config.
func NewPollyProvider(cfg Config) (Provider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = "Joanna"
	}
	return &PollyProvider{
		client:  polly.NewFromConfig(awsCfg),
		voiceID: voiceID,
		format: Format{
			SampleRate: 8000,
			Channels:   1,
			BitDepth:   8,
			Encoding:   "mulaw",
		},
	}, nil
}

func (p *PollyProvider) Format() Format { return p.format }

// Synthesize requests 16-bit PCM speech audio from Polly (its only
// linear output format), repacks it to mu-law to match Format, and delivers
// it as a single chunk (Polly's SynthesizeSpeech is not itself incremental).
func (p *PollyProvider) Synthesize(ctx context.Context, handler Handler, text string) error {
	p.stopping.Store(false)

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         &text,
		VoiceId:      pollytypes.VoiceId(p.voiceID),
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   awsString("8000"),
	})
	if err != nil {
		return err
	}
	defer out.AudioStream.Close()

	if p.stopping.Load() || ctx.Err() != nil {
		return ctx.Err()
	}

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return err
	}
	handler.OnMessage(codec.PCM16LEToPCMU(pcm))
	return nil
}

// Stop marks the in-flight call for cancellation; Polly's single-shot
// SynthesizeSpeech call has no mid-stream boundary, so the mark is checked
// once SynthesizeSpeech returns, before the audio is read and delivered.
// Each Synthesize call clears the mark on entry, so a Stop made between
// calls has no effect on the next one.
func (p *PollyProvider) Stop() {
	p.stopping.Store(true)
}

func (p *PollyProvider) Close() error { return nil }

func awsString(s string) *string { return &s }
