package focus

import (
	"errors"
	"fmt"
)

// ErrNoFileSelected is returned when Analyze is called without a completed
// CSV pick. No network request is made.
var ErrNoFileSelected = errors.New("no file selected")

// Kind is the coarse category of an analysis or download failure.
type Kind string

const (
	KindUpload            Kind = "upload"
	KindProcessing        Kind = "processing"
	KindMalformedResponse Kind = "malformed_response"
	KindDownload          Kind = "download"
	KindPermissionDenied  Kind = "permission_denied"
)

// Error describes a failed step of the upload/process exchange or of a plot
// download.
type Error struct {
	Kind       Kind
	StatusCode int    // HTTP status, zero for transport and local errors
	Message    string // server supplied message, if any
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindUpload:
		msg = "failed to upload file"
	case KindProcessing:
		msg = "failed to process file"
	case KindMalformedResponse:
		msg = "malformed processing response"
	case KindDownload:
		msg = "failed to download image"
	case KindPermissionDenied:
		msg = "permission denied saving image"
	default:
		msg = "analysis failed"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the single message shown to the user for this failure.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindUpload:
		return "Failed to upload file."
	case KindProcessing:
		return "Failed to process file."
	case KindMalformedResponse:
		return "The server returned an unreadable response."
	case KindDownload:
		return "Failed to download image."
	case KindPermissionDenied:
		return "Permission denied. Please grant storage permission."
	default:
		return "Something went wrong during processing."
	}
}

// KindOf returns the failure category of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// UserMessage renders any analysis error as the message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNoFileSelected) {
		return "Please select a file to analyze."
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return "Something went wrong during processing."
}
