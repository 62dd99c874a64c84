package inference

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/bookworm/pkg/adapter"
	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/answer.md
var answerPromptRaw string

var answerPromptTmpl = template.Must(template.New("answer").Parse(answerPromptRaw))

const (
	DefaultTimeout  = 120 * time.Second
	DefaultMIMEType = "audio/webm"
)

// Request is one question: the spoken audio by reference plus the grounding excerpt
type Request struct {
	ObjectURI string
	// MIMEType of the audio object. DefaultMIMEType when empty.
	MIMEType string
	Context  string
}

// Response carries the generated answer
type Response struct {
	Text string
}

// Client asks the multimodal model to transcribe the question and answer it from the
// document context. The model does the transcription; nothing is transcribed locally.
type Client struct {
	gemini  adapter.Gemini
	timeout time.Duration
}

type Option func(*Client)

// WithTimeout bounds a single generation call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func New(gemini adapter.Gemini, opts ...Option) *Client {
	c := &Client{
		gemini:  gemini,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Answer sends exactly one generation request. Failures are not retried.
func (c *Client) Answer(ctx context.Context, req *Request) (*Response, error) {
	if strings.TrimSpace(req.Context) == "" {
		return nil, model.NewError(model.KindMissingContext, "", goerr.New(model.MissingContextMessage))
	}
	if req.ObjectURI == "" {
		return nil, model.NewError(model.KindValidation, "", goerr.New("audio object URI is empty"))
	}

	contents, err := buildContents(req)
	if err != nil {
		return nil, model.NewError(model.KindInternal, "", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logging.From(ctx).Info("sending question to inference service", "uri", req.ObjectURI)
	resp, err := c.gemini.GenerateContent(ctx, contents, nil)
	if err != nil {
		opts := []goerr.Option{goerr.V("uri", req.ObjectURI)}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			opts = append(opts, goerr.V("code", apiErr.Code), goerr.V("status", apiErr.Status))
		}
		return nil, model.NewError(model.KindUpstream, "",
			goerr.Wrap(err, "inference failed", opts...))
	}

	text := firstText(resp)
	if text == "" {
		return nil, model.NewError(model.KindUpstream, "",
			goerr.New("inference returned no text", goerr.V("uri", req.ObjectURI)))
	}

	logging.From(ctx).Info("received answer from inference service", "chars", len([]rune(text)))
	return &Response{Text: text}, nil
}

func buildContents(req *Request) ([]*genai.Content, error) {
	var buf bytes.Buffer
	if err := answerPromptTmpl.Execute(&buf, struct{ Excerpt string }{
		Excerpt: model.TruncateContext(req.Context),
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render answer prompt")
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}

	return []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(buf.String()),
			genai.NewPartFromURI(req.ObjectURI, mimeType),
		}, genai.RoleUser),
	}, nil
}

// firstText returns the first text segment of the first candidate
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			return part.Text
		}
	}
	return ""
}
