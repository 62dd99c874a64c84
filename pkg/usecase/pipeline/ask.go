package pipeline

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/service/inference"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const defaultAudioExt = ".webm"

// AskInput is one recorded question
type AskInput struct {
	Audio       io.Reader
	Filename    string
	ContentType string
}

// AskResult describes how far the question got. Session is set once the answer text is
// persisted, including when synthesis failed afterwards.
type AskResult struct {
	Session *model.Session
	Stage   model.Stage
}

// Ask answers one spoken question about the current book.
//
// It is the single place where pipeline failures are caught: every error returned is a
// *model.Error carrying the stage that could not be reached, and has already been logged.
func (u *UseCase) Ask(ctx context.Context, input *AskInput) (result *AskResult, err error) {
	result = &AskResult{Stage: model.StageReceived}

	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("panic in question pipeline", goerr.V("panic", fmt.Sprint(r)))
		}
		if err != nil {
			err = u.fail(ctx, result, err)
		}
	}()

	if input == nil || input.Audio == nil {
		return result, model.NewError(model.KindValidation, "", goerr.New("No file part"))
	}
	if input.Filename == "" {
		return result, model.NewError(model.KindValidation, "", goerr.New("No selected file"))
	}

	id := model.NewSessionID(u.now())
	ctx = logging.WithAttrs(ctx, "session_id", id)
	if u.sessions.Exists(ctx, id) {
		logging.From(ctx).Warn("session ID already used in this second, artifacts will be overwritten")
	}

	// 1. raw audio
	audioPath, err := u.uploads.SaveAudio(ctx, id, audioExt(input.Filename), input.Audio)
	if err != nil {
		return result, err
	}
	result.Stage = model.StageAudioStored
	logging.From(ctx).Info("audio saved", "path", audioPath)

	// 2. a document must already be uploaded
	bookText := u.book.Get()
	if !hasContext(bookText) {
		return result, model.NewError(model.KindMissingContext, "", goerr.New(model.MissingContextMessage))
	}
	result.Stage = model.StageContextChecked

	// 3. upload and ask
	uri, err := u.gateway.Store(ctx, audioPath, contentType(input.ContentType))
	if err != nil {
		return result, err
	}
	resp, err := u.answerer.Answer(ctx, &inference.Request{
		ObjectURI: uri,
		MIMEType:  contentType(input.ContentType),
		Context:   bookText,
	})
	if err != nil {
		return result, err
	}
	result.Stage = model.StageAnswered

	// 4. answer text
	if err := u.sessions.PutAnswer(ctx, id, resp.Text); err != nil {
		return result, err
	}
	result.Stage = model.StageAnswerPersisted
	result.Session = &model.Session{
		ID:        id,
		Answer:    resp.Text,
		TextFile:  id.TextName(),
		CreatedAt: id.CreatedAt(),
	}
	logging.From(ctx).Info("answer saved", "file", id.TextName())

	// 5. answer audio
	audio, err := u.speech.Synthesize(ctx, resp.Text)
	if err != nil {
		return result, goerr.Wrap(err, "answer text was saved but audio synthesis failed",
			goerr.V("text_file", id.TextName()))
	}
	if err := u.sessions.PutAudio(ctx, id, audio); err != nil {
		return result, err
	}
	result.Stage = model.StageAudioSynthesized
	result.Session.AudioFile = id.AudioName()

	result.Stage = model.StageComplete
	logging.From(ctx).Info("question answered", "audio_file", id.AudioName())
	return result, nil
}

// fail classifies err with the stage following the last one reached and logs it
func (u *UseCase) fail(ctx context.Context, result *AskResult, err error) error {
	failed := &model.Error{
		Kind:  model.KindOf(err),
		Stage: nextStage(result.Stage),
		Err:   err,
	}

	logger := logging.From(ctx).With("stage", failed.Stage, "kind", failed.Kind.String())
	switch failed.Kind {
	case model.KindValidation, model.KindMissingContext:
		logger.Warn("question rejected", "error", err)
	default:
		logger.Error("question pipeline failed", "error", err)
	}
	return failed
}

var stageOrder = []model.Stage{
	model.StageReceived,
	model.StageAudioStored,
	model.StageContextChecked,
	model.StageAnswered,
	model.StageAnswerPersisted,
	model.StageAudioSynthesized,
	model.StageComplete,
}

func nextStage(s model.Stage) model.Stage {
	for i, stage := range stageOrder[:len(stageOrder)-1] {
		if stage == s {
			return stageOrder[i+1]
		}
	}
	return model.StageComplete
}

// audioExt keeps the client's extension when it looks like one, e.g. ".webm" or ".m4a"
func audioExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return defaultAudioExt
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return defaultAudioExt
		}
	}
	return ext
}

// contentType reduces the client's media type to a bare audio type. Parameters such as
// codecs=opus are dropped, and audio-only recordings labeled video/* become audio/*.
func contentType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return inference.DefaultMIMEType
	}

	switch {
	case strings.HasPrefix(mediaType, "audio/"):
		return mediaType
	case strings.HasPrefix(mediaType, "video/"):
		return "audio/" + strings.TrimPrefix(mediaType, "video/")
	default:
		return inference.DefaultMIMEType
	}
}
