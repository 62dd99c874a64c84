package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/repository"
	"github.com/m-mizutani/bookworm/pkg/service/document"
	"github.com/m-mizutani/bookworm/pkg/service/inference"
	"github.com/m-mizutani/bookworm/pkg/usecase/pipeline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

type mockGateway struct {
	calls int
	paths []string
	err   error
}

func (m *mockGateway) Store(ctx context.Context, localPath, contentType string) (string, error) {
	m.calls++
	m.paths = append(m.paths, localPath)
	if m.err != nil {
		return "", m.err
	}
	return "gs://test-bucket/audio_inputs/" + filepath.Base(localPath), nil
}

type mockAnswerer struct {
	requests []*inference.Request
	answer   string
	err      error
}

func (m *mockAnswerer) Answer(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &inference.Response{Text: m.answer}, nil
}

type mockSynthesizer struct {
	texts []string
	err   error
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	m.texts = append(m.texts, text)
	if m.err != nil {
		return nil, m.err
	}
	return []byte("ID3 synthesized " + text), nil
}

type fixture struct {
	uc         *pipeline.UseCase
	uploadDir  string
	resultDir  string
	book       *document.Context
	pages      []string
	extractErr error
	gateway    *mockGateway
	answerer   *mockAnswerer
	speech     *mockSynthesizer
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		uploadDir: filepath.Join(t.TempDir(), "uploads"),
		resultDir: filepath.Join(t.TempDir(), "results"),
		gateway:   &mockGateway{},
		answerer:  &mockAnswerer{answer: "They are friends."},
		speech:    &mockSynthesizer{},
		clock:     time.Date(2026, 10, 15, 9, 8, 7, 0, time.Local),
	}

	uploads, err := repository.NewFileUploads(f.uploadDir)
	gt.NoError(t, err)
	sessions, err := repository.NewFileSessions(ctx, f.resultDir)
	gt.NoError(t, err)
	f.book = document.NewContext(f.uploadDir)

	extractor := document.NewExtractor(document.WithPageReader(func(path string) ([]string, error) {
		if f.extractErr != nil {
			return nil, f.extractErr
		}
		return f.pages, nil
	}))

	f.uc = pipeline.New(pipeline.Input{
		Uploads:   uploads,
		Sessions:  sessions,
		Book:      f.book,
		Extractor: extractor,
		Gateway:   f.gateway,
		Answerer:  f.answerer,
		Speech:    f.speech,
	}, pipeline.WithClock(func() time.Time { return f.clock }))

	return f
}

func (f *fixture) uploadBook(t *testing.T, pages ...string) {
	t.Helper()
	f.pages = pages
	_, err := f.uc.UploadDocument(context.Background(), &pipeline.DocumentInput{
		Document: strings.NewReader("%PDF-1.4 fake"),
		Filename: "book.pdf",
	})
	gt.NoError(t, err)
}

func (f *fixture) ask(t *testing.T) (*pipeline.AskResult, error) {
	t.Helper()
	return f.askAs(t, "audio/webm")
}

func (f *fixture) askAs(t *testing.T, contentType string) (*pipeline.AskResult, error) {
	t.Helper()
	return f.uc.Ask(context.Background(), &pipeline.AskInput{
		Audio:       strings.NewReader("webm bytes"),
		Filename:    "recorded_audio.webm",
		ContentType: contentType,
	})
}

func TestAskScenario(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.", "Chapter 2. The hound.")
	gt.Equal(t, f.book.Get(), "Chapter 1. The fox.Chapter 2. The hound.")

	result, err := f.ask(t)
	gt.NoError(t, err)
	gt.Equal(t, result.Stage, model.StageComplete)

	gt.A(t, f.answerer.requests).Length(1)
	req := f.answerer.requests[0]
	gt.Equal(t, req.Context, "Chapter 1. The fox.Chapter 2. The hound.")
	gt.Equal(t, req.ObjectURI, "gs://test-bucket/audio_inputs/20261015-090807.webm")
	gt.Equal(t, req.MIMEType, "audio/webm")

	id := result.Session.ID
	gt.Equal(t, id, model.SessionID("20261015-090807"))

	text, err := os.ReadFile(filepath.Join(f.resultDir, id.TextName()))
	gt.NoError(t, err)
	gt.Equal(t, string(text), "They are friends.")

	audio, err := os.ReadFile(filepath.Join(f.resultDir, id.AudioName()))
	gt.NoError(t, err)
	gt.A(t, audio).Longer(0)

	raw, err := os.ReadFile(filepath.Join(f.uploadDir, "20261015-090807.webm"))
	gt.NoError(t, err)
	gt.Equal(t, string(raw), "webm bytes")

	sessions, err := f.uc.ListSessions(context.Background(), pipeline.ListOptions{})
	gt.NoError(t, err)
	gt.A(t, sessions).Length(1)
	gt.Equal(t, sessions[0].ID, id)
	gt.Equal(t, sessions[0].TextFile, "20261015-090807.txt")
	gt.Equal(t, sessions[0].AudioFile, "20261015-090807.mp3")
}

func TestAskWithoutBook(t *testing.T) {
	f := newFixture(t)

	result, err := f.ask(t)
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindMissingContext)
	gt.Equal(t, model.StageOf(err), model.StageContextChecked)
	gt.S(t, err.Error()).Contains("Please upload a book first.")
	gt.Equal(t, result.Stage, model.StageAudioStored)

	gt.Equal(t, f.gateway.calls, 0)
	gt.A(t, f.answerer.requests).Length(0)
	gt.A(t, f.speech.texts).Length(0)

	entries, err := os.ReadDir(f.resultDir)
	gt.NoError(t, err)
	gt.A(t, entries).Length(0)
}

func TestAskWithImageOnlyBook(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "", "")

	_, err := f.ask(t)
	gt.Equal(t, model.KindOf(err), model.KindMissingContext)
	gt.A(t, f.answerer.requests).Length(0)
}

func TestAskWithBlankBook(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "  ", "\n\t")

	status := f.uc.ContextStatus()
	gt.False(t, status.Loaded)

	_, err := f.ask(t)
	gt.Equal(t, model.KindOf(err), model.KindMissingContext)
	gt.Equal(t, f.gateway.calls, 0)
}

func TestAskMediaType(t *testing.T) {
	testCases := map[string]struct {
		contentType string
		expected    string
	}{
		"plain":        {contentType: "audio/webm", expected: "audio/webm"},
		"with codecs":  {contentType: "audio/webm;codecs=opus", expected: "audio/webm"},
		"upper case":   {contentType: "Audio/OGG; codecs=opus", expected: "audio/ogg"},
		"video webm":   {contentType: "video/webm", expected: "audio/webm"},
		"empty":        {contentType: "", expected: inference.DefaultMIMEType},
		"octet stream": {contentType: "application/octet-stream", expected: inference.DefaultMIMEType},
		"malformed":    {contentType: "audio/", expected: inference.DefaultMIMEType},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.uploadBook(t, "Chapter 1. The fox.")

			_, err := f.askAs(t, tc.contentType)
			gt.NoError(t, err)
			gt.A(t, f.answerer.requests).Length(1)
			gt.Equal(t, f.answerer.requests[0].MIMEType, tc.expected)
		})
	}
}

func TestAskValidation(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1.")

	_, err := f.uc.Ask(context.Background(), &pipeline.AskInput{})
	gt.Equal(t, model.KindOf(err), model.KindValidation)
	gt.S(t, err.Error()).Contains("No file part")

	_, err = f.uc.Ask(context.Background(), &pipeline.AskInput{Audio: strings.NewReader("x")})
	gt.Equal(t, model.KindOf(err), model.KindValidation)
	gt.S(t, err.Error()).Contains("No selected file")

	gt.Equal(t, f.gateway.calls, 0)
}

func TestAskInferenceFailure(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.")
	f.answerer.err = model.NewError(model.KindUpstream, "", goerr.New("inference failed: deadline exceeded"))

	result, err := f.ask(t)
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindUpstream)
	gt.Equal(t, model.StageOf(err), model.StageAnswered)
	gt.S(t, err.Error()).Contains("deadline exceeded")
	gt.True(t, result.Session == nil)

	entries, err := os.ReadDir(f.resultDir)
	gt.NoError(t, err)
	gt.A(t, entries).Length(0)
	gt.A(t, f.speech.texts).Length(0)
}

func TestAskGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.")
	f.gateway.err = model.NewError(model.KindUpstream, "", goerr.New("permission denied"))

	_, err := f.ask(t)
	gt.Equal(t, model.KindOf(err), model.KindUpstream)
	gt.A(t, f.answerer.requests).Length(0)
}

func TestAskSynthesisFailureKeepsText(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.")
	f.speech.err = model.NewError(model.KindUpstream, "", goerr.New("speech synthesis failed"))

	result, err := f.ask(t)
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindUpstream)
	gt.Equal(t, model.StageOf(err), model.StageAudioSynthesized)
	gt.S(t, err.Error()).Contains("audio synthesis failed")

	gt.NotNil(t, result.Session)
	gt.True(t, result.Session.Partial())

	text, err := os.ReadFile(filepath.Join(f.resultDir, "20261015-090807.txt"))
	gt.NoError(t, err)
	gt.Equal(t, string(text), "They are friends.")

	_, err = os.Stat(filepath.Join(f.resultDir, "20261015-090807.mp3"))
	gt.True(t, os.IsNotExist(err))

	complete, err := f.uc.ListSessions(context.Background(), pipeline.ListOptions{})
	gt.NoError(t, err)
	gt.A(t, complete).Length(0)

	all, err := f.uc.ListSessions(context.Background(), pipeline.ListOptions{IncludePartial: true})
	gt.NoError(t, err)
	gt.A(t, all).Length(1)
	gt.True(t, all[0].Partial())
}

func TestAskReusedIDWithSynthesisFailure(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.")

	_, err := f.ask(t)
	gt.NoError(t, err)

	// same second, so the same session ID
	f.answerer.answer = "They were rivals."
	f.speech.err = model.NewError(model.KindUpstream, "", goerr.New("speech synthesis failed"))
	_, err = f.ask(t)
	gt.Error(t, err)
	gt.Equal(t, model.StageOf(err), model.StageAudioSynthesized)

	_, err = os.Stat(filepath.Join(f.resultDir, "20261015-090807.mp3"))
	gt.True(t, os.IsNotExist(err))

	complete, err := f.uc.ListSessions(context.Background(), pipeline.ListOptions{})
	gt.NoError(t, err)
	gt.A(t, complete).Length(0)

	all, err := f.uc.ListSessions(context.Background(), pipeline.ListOptions{IncludePartial: true})
	gt.NoError(t, err)
	gt.A(t, all).Length(1)
	gt.True(t, all[0].Partial())
	gt.Equal(t, all[0].Answer, "They were rivals.")

	_, err = f.uc.ArtifactPath(context.Background(), "20261015-090807.mp3")
	gt.True(t, errors.Is(err, repository.ErrArtifactNotFound))
}

func TestAskListingOrder(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.")

	for i := 0; i < 3; i++ {
		_, err := f.ask(t)
		gt.NoError(t, err)
		f.clock = f.clock.Add(time.Minute)
	}

	sessions, err := f.uc.ListSessions(context.Background(), pipeline.ListOptions{})
	gt.NoError(t, err)
	gt.A(t, sessions).Length(3)
	gt.Equal(t, sessions[0].ID, model.SessionID("20261015-091007"))
	gt.Equal(t, sessions[1].ID, model.SessionID("20261015-090907"))
	gt.Equal(t, sessions[2].ID, model.SessionID("20261015-090807"))
}

func TestAskRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.")

	uc := pipeline.New(pipeline.Input{
		Uploads:  mustUploads(t, f.uploadDir),
		Sessions: mustSessions(t, f.resultDir),
		Book:     f.book,
		Gateway:  f.gateway,
		Answerer: nil,
		Speech:   f.speech,
	})

	_, err := uc.Ask(context.Background(), &pipeline.AskInput{
		Audio:    strings.NewReader("webm"),
		Filename: "a.webm",
	})
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindInternal)
	gt.S(t, err.Error()).Contains("panic in question pipeline")
}

func TestUploadDocumentTruncatesContext(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("b", model.MaxContextLength+10)
	f.pages = []string{long}

	result, err := f.uc.UploadDocument(context.Background(), &pipeline.DocumentInput{
		Document: strings.NewReader("%PDF"),
		Filename: "long.pdf",
	})
	gt.NoError(t, err)
	gt.True(t, result.Truncated)
	gt.Equal(t, result.Characters, model.MaxContextLength+10)
	gt.Equal(t, len(f.book.Get()), model.MaxContextLength)
	gt.Equal(t, result.Path, filepath.Join(f.uploadDir, repository.BookFileName))

	status := f.uc.ContextStatus()
	gt.True(t, status.Loaded)
	gt.Equal(t, status.Characters, model.MaxContextLength)
}

func TestUploadDocumentFailureKeepsContext(t *testing.T) {
	f := newFixture(t)
	f.uploadBook(t, "Chapter 1. The fox.")

	f.extractErr = goerr.New("malformed xref")
	_, err := f.uc.UploadDocument(context.Background(), &pipeline.DocumentInput{
		Document: strings.NewReader("garbage"),
		Filename: "broken.pdf",
	})
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), model.KindExtraction)
	gt.Equal(t, f.book.Get(), "Chapter 1. The fox.")

	book, err := os.ReadFile(filepath.Join(f.uploadDir, repository.BookFileName))
	gt.NoError(t, err)
	gt.Equal(t, string(book), "%PDF-1.4 fake")

	text, err := os.ReadFile(filepath.Join(f.uploadDir, document.TextFileName))
	gt.NoError(t, err)
	gt.Equal(t, string(text), "Chapter 1. The fox.")

	entries, err := os.ReadDir(f.uploadDir)
	gt.NoError(t, err)
	for _, e := range entries {
		gt.False(t, strings.HasPrefix(e.Name(), ".book-"))
	}
}

func TestUploadDocumentValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.UploadDocument(context.Background(), &pipeline.DocumentInput{})
	gt.Equal(t, model.KindOf(err), model.KindValidation)

	_, err = f.uc.UploadDocument(context.Background(), &pipeline.DocumentInput{Document: strings.NewReader("x")})
	gt.Equal(t, model.KindOf(err), model.KindValidation)
	gt.False(t, f.uc.ContextStatus().Loaded)
}

func mustUploads(t *testing.T, dir string) *repository.FileUploads {
	u, err := repository.NewFileUploads(dir)
	gt.NoError(t, err)
	return u
}

func mustSessions(t *testing.T, dir string) *repository.FileSessions {
	s, err := repository.NewFileSessions(context.Background(), dir)
	gt.NoError(t, err)
	return s
}
