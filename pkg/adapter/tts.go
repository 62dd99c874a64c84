package adapter

import (
	"context"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// TextToSpeech is the interface for the speech synthesis service
type TextToSpeech interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type textToSpeechClient struct {
	client *texttospeech.Client
}

// NewTextToSpeech creates a Cloud Text-to-Speech client
func NewTextToSpeech(ctx context.Context, opts ...option.ClientOption) (TextToSpeech, error) {
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create text-to-speech client")
	}

	return &textToSpeechClient{client: client}, nil
}

func (c *textToSpeechClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	resp, err := c.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to synthesize speech")
	}
	return resp, nil
}

func (c *textToSpeechClient) Close() error {
	if err := c.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close text-to-speech client")
	}
	return nil
}
