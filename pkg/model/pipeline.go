package model

import (
	"errors"
)

// Stage is a step in answering one question. A failure is reported together with the
// stage that could not be reached.
type Stage string

const (
	StageReceived         Stage = "received"
	StageAudioStored      Stage = "audio_stored"
	StageContextChecked   Stage = "context_checked"
	StageAnswered         Stage = "answered"
	StageAnswerPersisted  Stage = "answer_persisted"
	StageAudioSynthesized Stage = "audio_synthesized"
	StageComplete         Stage = "complete"
)

// Kind classifies a failure for the caller
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindMissingContext
	KindUpstream
	KindExtraction
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindMissingContext:
		return "missing_context"
	case KindUpstream:
		return "upstream"
	case KindExtraction:
		return "extraction"
	default:
		return "internal"
	}
}

// MissingContextMessage is shown when a question arrives before any document
const MissingContextMessage = "Please upload a book first."

// Error is a classified failure. Err holds the underlying goerr chain.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError tags err with a kind. Stage may be empty when the failure is not part of the
// question pipeline.
func NewError(kind Kind, stage Stage, err error) error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain, KindInternal if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StageOf returns the stage recorded on the outermost classified error
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
