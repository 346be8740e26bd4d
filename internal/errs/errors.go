// Package errs defines the typed error-kind catalog of §7, shaped after
// beenet's pkg/content.ContentError: a stable code, a human message, an
// optional wrapped cause, and a flag distinguishing errors worth
// retrying from ones that are not.
package errs

import "fmt"

// Code identifies an error kind from spec.md §7.
type Code string

const (
	CodeIoError         Code = "IO_ERROR"
	CodeReadError       Code = "READ_ERROR"
	CodeIntegrity       Code = "INTEGRITY_FAILURE"
	CodeDigestCollision Code = "DIGEST_COLLISION"
	CodeMissing         Code = "MISSING"
	CodeSealedSnapshot  Code = "SEALED_SNAPSHOT"
	CodeTargetExists    Code = "TARGET_EXISTS"
	CodeUnknownSnapshot Code = "UNKNOWN_SNAPSHOT"
	CodeCancelled       Code = "CANCELLED"
)

// Error is the engine's error type. Callers match kinds with errors.Is
// against the Is* sentinels below, or with errors.As against *Error to
// inspect Code/Path/Digest.
type Error struct {
	Code      Code
	Message   string
	Path      string
	Digest    string // hex digest, when applicable
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Digest != "":
		return fmt.Sprintf("%s: %s (path=%s digest=%s)", e.Code, e.Message, e.Path, e.Digest)
	case e.Path != "":
		return fmt.Sprintf("%s: %s (path=%s)", e.Code, e.Message, e.Path)
	case e.Digest != "":
		return fmt.Sprintf("%s: %s (digest=%s)", e.Code, e.Message, e.Digest)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so callers
// can write errors.Is(err, &errs.Error{Code: errs.CodeMissing}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func IoError(path string, cause error) *Error {
	return &Error{Code: CodeIoError, Message: "I/O failure", Path: path, Retryable: true, Cause: cause}
}

func ReadErrorAt(offset uint64, cause error) *Error {
	return &Error{Code: CodeReadError, Message: fmt.Sprintf("read failed at offset %d", offset), Retryable: true, Cause: cause}
}

func IntegrityFailure(digest string) *Error {
	return &Error{Code: CodeIntegrity, Message: "digest verification failed", Digest: digest}
}

func DigestCollision(digest string) *Error {
	return &Error{Code: CodeDigestCollision, Message: "stored bytes do not match prior insertion under this digest", Digest: digest}
}

func Missing(digest string) *Error {
	return &Error{Code: CodeMissing, Message: "digest not found in content store", Digest: digest}
}

func SealedSnapshot(id string) *Error {
	return &Error{Code: CodeSealedSnapshot, Message: "snapshot is sealed", Path: id}
}

func TargetExists(path string) *Error {
	return &Error{Code: CodeTargetExists, Message: "target already exists", Path: path}
}

func UnknownSnapshot(id string) *Error {
	return &Error{Code: CodeUnknownSnapshot, Message: "snapshot not found", Path: id}
}

func Cancelled() *Error {
	return &Error{Code: CodeCancelled, Message: "operation cancelled"}
}
