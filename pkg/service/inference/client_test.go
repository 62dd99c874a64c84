package inference_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/service/inference"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

// mockGemini is a mock implementation of adapter.Gemini for testing
type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	calls        int
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, genai.NewPartFromText(text))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromParts(parts, genai.RoleModel)},
		},
	}
}

func TestAnswer(t *testing.T) {
	var captured []*genai.Content
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			captured = contents
			return textResponse("They are friends.", "ignored second segment"), nil
		},
	}

	client := inference.New(gemini)
	resp, err := client.Answer(context.Background(), &inference.Request{
		ObjectURI: "gs://bucket/audio_inputs/abc.webm",
		Context:   "Chapter 1. The fox.Chapter 2. The hound.",
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Text, "They are friends.")
	gt.Equal(t, gemini.calls, 1)

	gt.A(t, captured).Length(1)
	gt.Equal(t, captured[0].Role, string(genai.RoleUser))
	gt.A(t, captured[0].Parts).Length(2)

	prompt := captured[0].Parts[0].Text
	gt.S(t, prompt).Contains("Chapter 1. The fox.Chapter 2. The hound.")
	gt.S(t, prompt).Contains("based only on the excerpt")

	audio := captured[0].Parts[1].FileData
	gt.NotNil(t, audio)
	gt.Equal(t, audio.FileURI, "gs://bucket/audio_inputs/abc.webm")
	gt.Equal(t, audio.MIMEType, "audio/webm")
}

func TestAnswerTruncatesContext(t *testing.T) {
	var prompt string
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			prompt = contents[0].Parts[0].Text
			return textResponse("ok"), nil
		},
	}

	long := strings.Repeat("a", model.MaxContextLength) + "TAIL"
	_, err := inference.New(gemini).Answer(context.Background(), &inference.Request{
		ObjectURI: "gs://bucket/a.webm",
		MIMEType:  "audio/ogg",
		Context:   long,
	})
	gt.NoError(t, err)
	gt.S(t, prompt).NotContains("TAIL")
}

func TestAnswerWithoutContext(t *testing.T) {
	for _, ctxText := range []string{"", "  \n\t"} {
		gemini := &mockGemini{}
		_, err := inference.New(gemini).Answer(context.Background(), &inference.Request{
			ObjectURI: "gs://bucket/a.webm",
			Context:   ctxText,
		})
		gt.Error(t, err)
		gt.Equal(t, model.KindOf(err), model.KindMissingContext)
		gt.Equal(t, gemini.calls, 0)
	}
}

func TestAnswerServiceFailure(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "model overloaded"}
		},
	}

	_, err := inference.New(gemini).Answer(context.Background(), &inference.Request{
		ObjectURI: "gs://bucket/a.webm",
		Context:   "Chapter 1.",
	})
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindUpstream)
	gt.S(t, err.Error()).Contains("inference failed")
	gt.Equal(t, gemini.calls, 1)
}

func TestAnswerEmptyResponse(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}

	_, err := inference.New(gemini).Answer(context.Background(), &inference.Request{
		ObjectURI: "gs://bucket/a.webm",
		Context:   "Chapter 1.",
	})
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindUpstream)
}

func TestAnswerTimeout(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	client := inference.New(gemini, inference.WithTimeout(10*time.Millisecond))
	_, err := client.Answer(context.Background(), &inference.Request{
		ObjectURI: "gs://bucket/a.webm",
		Context:   "Chapter 1.",
	})
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindUpstream)
	gt.True(t, errors.Is(err, context.DeadlineExceeded))
}
