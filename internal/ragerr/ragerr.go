// Package ragerr defines the tagged error kinds returned by every pipeline stage.
//
// Stages return the most specific kind that applies. Callers switch on the kind
// instead of on concrete error types.
package ragerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindConfig means required configuration is missing.
	KindConfig Kind = "config"
	// KindModelConfig means an external model client could not be constructed.
	KindModelConfig Kind = "model_config"
	// KindDocument means the document or the request could not be processed.
	KindDocument Kind = "document_processing"
	// KindValidation means the request input is malformed.
	KindValidation Kind = "validation"
)

// External returns the kind reported to callers outside the core.
// Missing configuration is reported as a model configuration failure.
func (k Kind) External() Kind {
	if k == KindConfig {
		return KindModelConfig
	}
	return k
}

// Masked reports whether the message must be hidden from external callers.
func (k Kind) Masked() bool {
	return k == KindConfig || k == KindModelConfig
}

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	// Keys lists the configuration keys involved, if any.
	Keys []string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrConfig      = &Error{Kind: KindConfig}
	ErrModelConfig = &Error{Kind: KindModelConfig}
	ErrDocument    = &Error{Kind: KindDocument}
	ErrValidation  = &Error{Kind: KindValidation}
)

// Config returns a configuration error naming every missing key.
func Config(missing ...string) *Error {
	return &Error{
		Kind:    KindConfig,
		Message: fmt.Sprintf("missing required environment variables: %s", strings.Join(missing, ", ")),
		Keys:    missing,
	}
}

// ModelConfig wraps a model client construction failure.
func ModelConfig(msg string, err error) *Error {
	return &Error{Kind: KindModelConfig, Message: msg, Err: err}
}

// Document wraps a document processing failure. err may be nil.
func Document(msg string, err error) *Error {
	return &Error{Kind: KindDocument, Message: msg, Err: err}
}

// Validation reports malformed request input.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// KindOf returns the kind of err, if it is or wraps an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
