package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures handled by the upload and chat controllers.
type ErrorKind string

const (
	// InvalidFileType: the file's MIME type does not indicate PDF. No request is sent.
	InvalidFileType ErrorKind = "InvalidFileType"
	// FileTooLarge: the file exceeds the upload size limit. No request is sent.
	FileTooLarge ErrorKind = "FileTooLarge"
	// UploadRejected: /upload answered with a non-2xx status.
	UploadRejected ErrorKind = "UploadRejected"
	// UploadTransportFailure: /upload could not be reached or its body could not be read.
	UploadTransportFailure ErrorKind = "UploadTransportFailure"
	// AnswerServiceError: /query succeeded but reported an error instead of an answer.
	AnswerServiceError ErrorKind = "AnswerServiceError"
	// QueryTransportFailure: /query answered non-2xx or could not be reached.
	QueryTransportFailure ErrorKind = "QueryTransportFailure"
)

// Error is a user-visible failure with its kind. Message is what the user sees.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err when it is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
