package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/bookworm/pkg/adapter"
	"github.com/m-mizutani/bookworm/pkg/repository"
	"github.com/m-mizutani/bookworm/pkg/service/document"
	"github.com/m-mizutani/bookworm/pkg/service/inference"
	"github.com/m-mizutani/bookworm/pkg/service/objectstore"
	"github.com/m-mizutani/bookworm/pkg/service/speech"
	"github.com/m-mizutani/bookworm/pkg/usecase/pipeline"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Local storage
	uploadDir string
	resultDir string

	// Google Cloud
	project         string
	location        string
	model           string
	bucket          string
	blobPrefix      string
	storageEndpoint string
	ttsEndpoint     string
	voiceLanguage   string

	storageTimeout   time.Duration
	inferenceTimeout time.Duration
	speechTimeout    time.Duration
}

// globalFlags returns logging and local storage flags used by every command
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("BOOKWORM_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       logging.FormatConsole,
			Sources:     cli.EnvVars("BOOKWORM_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "upload-dir",
			Usage:       "Directory for uploaded audio and the current book",
			Value:       "uploads",
			Sources:     cli.EnvVars("BOOKWORM_UPLOAD_DIR"),
			Destination: &cfg.uploadDir,
		},
		&cli.StringFlag{
			Name:        "result-dir",
			Usage:       "Directory for answer text and audio",
			Value:       "results",
			Sources:     cli.EnvVars("BOOKWORM_RESULT_DIR"),
			Destination: &cfg.resultDir,
		},
	}
}

// cloudFlags returns flags for the Google Cloud services used to answer questions
func cloudFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "location",
			Usage:       "Vertex AI location",
			Value:       "us-central1",
			Sources:     cli.EnvVars("BOOKWORM_LOCATION"),
			Destination: &cfg.location,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("BOOKWORM_MODEL"),
			Destination: &cfg.model,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket for question audio",
			Sources:     cli.EnvVars("BOOKWORM_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "blob-prefix",
			Usage:       "Object name prefix for question audio",
			Value:       objectstore.DefaultPrefix,
			Sources:     cli.EnvVars("BOOKWORM_BLOB_PREFIX"),
			Destination: &cfg.blobPrefix,
		},
		&cli.StringFlag{
			Name:        "storage-endpoint",
			Usage:       "Cloud Storage endpoint override, e.g. for an emulator",
			Sources:     cli.EnvVars("BOOKWORM_STORAGE_ENDPOINT"),
			Destination: &cfg.storageEndpoint,
		},
		&cli.StringFlag{
			Name:        "tts-endpoint",
			Usage:       "Text-to-Speech endpoint override",
			Sources:     cli.EnvVars("BOOKWORM_TTS_ENDPOINT"),
			Destination: &cfg.ttsEndpoint,
		},
		&cli.StringFlag{
			Name:        "voice-language",
			Usage:       "Language code of the answer voice",
			Value:       speech.DefaultLanguageCode,
			Sources:     cli.EnvVars("BOOKWORM_VOICE_LANGUAGE"),
			Destination: &cfg.voiceLanguage,
		},
		&cli.DurationFlag{
			Name:        "storage-timeout",
			Usage:       "Timeout of one audio upload",
			Value:       objectstore.DefaultTimeout,
			Sources:     cli.EnvVars("BOOKWORM_STORAGE_TIMEOUT"),
			Destination: &cfg.storageTimeout,
		},
		&cli.DurationFlag{
			Name:        "inference-timeout",
			Usage:       "Timeout of one Gemini request",
			Value:       inference.DefaultTimeout,
			Sources:     cli.EnvVars("BOOKWORM_INFERENCE_TIMEOUT"),
			Destination: &cfg.inferenceTimeout,
		},
		&cli.DurationFlag{
			Name:        "speech-timeout",
			Usage:       "Timeout of one speech synthesis request",
			Value:       speech.DefaultTimeout,
			Sources:     cli.EnvVars("BOOKWORM_SPEECH_TIMEOUT"),
			Destination: &cfg.speechTimeout,
		},
	}
}

// setupLogger installs the configured logger as default and into ctx
func (cfg *config) setupLogger(ctx context.Context) (context.Context, error) {
	logger, err := logging.New(cfg.logLevel, cfg.logFormat, os.Stderr)
	if err != nil {
		return ctx, goerr.Wrap(err, "invalid logging options")
	}
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.location == "" {
		return nil, goerr.New("location is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.project, cfg.location, adapter.WithGenerativeModel(cfg.model))
	if err != nil {
		return nil, err
	}
	return gemini, nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, goerr.New("bucket is required")
	}

	var opts []option.ClientOption
	if cfg.storageEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.storageEndpoint))
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage", goerr.V("bucket", cfg.bucket))
	}
	return storage, nil
}

// newTextToSpeech creates a new TextToSpeech adapter instance
func (cfg *config) newTextToSpeech(ctx context.Context) (adapter.TextToSpeech, error) {
	var opts []option.ClientOption
	if cfg.ttsEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.ttsEndpoint))
	}

	tts, err := adapter.NewTextToSpeech(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create text-to-speech client")
	}
	return tts, nil
}

// newLocalPipeline creates a pipeline that can extract documents and list sessions but
// cannot answer questions
func (cfg *config) newLocalPipeline(ctx context.Context) (*pipeline.UseCase, error) {
	uploads, err := repository.NewFileUploads(cfg.uploadDir)
	if err != nil {
		return nil, err
	}
	sessions, err := repository.NewFileSessions(ctx, cfg.resultDir)
	if err != nil {
		return nil, err
	}

	book := document.NewContext(cfg.uploadDir)
	if err := book.Load(ctx); err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Input{
		Uploads:   uploads,
		Sessions:  sessions,
		Book:      book,
		Extractor: document.NewExtractor(),
	}), nil
}

// newPipeline creates the full question pipeline. The returned function releases the
// cloud clients.
func (cfg *config) newPipeline(ctx context.Context) (*pipeline.UseCase, func(), error) {
	uploads, err := repository.NewFileUploads(cfg.uploadDir)
	if err != nil {
		return nil, nil, err
	}
	sessions, err := repository.NewFileSessions(ctx, cfg.resultDir)
	if err != nil {
		return nil, nil, err
	}

	book := document.NewContext(cfg.uploadDir)
	if err := book.Load(ctx); err != nil {
		return nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, nil, err
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	tts, err := cfg.newTextToSpeech(ctx)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := tts.Close(); err != nil {
			logging.From(ctx).Warn("failed to close text-to-speech client", "error", err)
		}
	}

	uc := pipeline.New(pipeline.Input{
		Uploads:   uploads,
		Sessions:  sessions,
		Book:      book,
		Extractor: document.NewExtractor(),
		Gateway: objectstore.New(storage,
			objectstore.WithPrefix(cfg.blobPrefix),
			objectstore.WithTimeout(cfg.storageTimeout),
		),
		Answerer: inference.New(gemini, inference.WithTimeout(cfg.inferenceTimeout)),
		Speech: speech.New(tts,
			speech.WithLanguageCode(cfg.voiceLanguage),
			speech.WithTimeout(cfg.speechTimeout),
		),
	})

	return uc, closer, nil
}
