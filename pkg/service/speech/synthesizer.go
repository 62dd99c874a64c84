package speech

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/m-mizutani/bookworm/pkg/adapter"
	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/status"
)

const (
	DefaultLanguageCode = "en-US"
	DefaultTimeout      = 60 * time.Second
)

// Synthesizer turns answer text into MP3 audio with a fixed neutral voice
type Synthesizer struct {
	tts          adapter.TextToSpeech
	languageCode string
	timeout      time.Duration
}

type Option func(*Synthesizer)

func WithLanguageCode(code string) Option {
	return func(s *Synthesizer) {
		s.languageCode = code
	}
}

// WithTimeout bounds a single synthesis call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.timeout = d
	}
}

func New(tts adapter.TextToSpeech, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		tts:          tts,
		languageCode: DefaultLanguageCode,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request builds the synthesis request for text. The shape depends only on text and the
// configured voice.
func (s *Synthesizer) Request(text string) *texttospeechpb.SynthesizeSpeechRequest {
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: s.languageCode,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
}

// Synthesize returns MP3 audio speaking text
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.NewError(model.KindValidation, "", goerr.New("text to synthesize is empty"))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.tts.SynthesizeSpeech(ctx, s.Request(text))
	if err != nil {
		return nil, model.NewError(model.KindUpstream, "",
			goerr.Wrap(err, "speech synthesis failed", goerr.V("code", status.Code(err).String())))
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, model.NewError(model.KindUpstream, "", goerr.New("speech synthesis returned no audio"))
	}

	logging.From(ctx).Info("synthesized answer audio", "bytes", len(resp.GetAudioContent()))
	return resp.GetAudioContent(), nil
}
