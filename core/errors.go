package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput        = "RM_BAD_INPUT"
	ErrorVersionMismatch = "RM_VERSION_MISMATCH"
	ErrorProtocolFault   = "RM_PROTOCOL_FAULT"
	ErrorCancelled       = "RM_CANCELLED"
	ErrorTimeout         = "RM_TIMEOUT"
	ErrorAborted         = "RM_ABORTED"
	ErrorFaulted         = "RM_FAULTED"
	ErrorInternal        = "RM_INTERNAL_ERROR"
)

var (
	ErrObjectAborted   = errors.New("core: communication object aborted")
	ErrObjectFaulted   = errors.New("core: communication object faulted")
	ErrVersionMismatch = errors.New("core: operation not supported by reliable messaging version")
)

// NewError builds a go-errors envelope with the HTTP status matching its
// category.
func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(httpStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(httpStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func BadInput(message string, metadata map[string]any) *goerrors.Error {
	return NewError(message, goerrors.CategoryBadInput, ErrorBadInput, metadata)
}

// ObjectStateError reports that an operation was interrupted because its
// owner was aborted or faulted.
type ObjectStateError struct {
	Owner   string
	Faulted bool
}

func (e *ObjectStateError) Error() string {
	if e == nil {
		return ErrObjectAborted.Error()
	}
	if e.Faulted {
		return "core: " + ownerLabel(e.Owner) + " is faulted"
	}
	return "core: " + ownerLabel(e.Owner) + " was aborted"
}

func (e *ObjectStateError) Unwrap() error {
	if e != nil && e.Faulted {
		return ErrObjectFaulted
	}
	return ErrObjectAborted
}

func (e *ObjectStateError) ToServiceError() *goerrors.Error {
	textCode := ErrorAborted
	owner := ""
	if e != nil {
		owner = strings.TrimSpace(e.Owner)
		if e.Faulted {
			textCode = ErrorFaulted
		}
	}
	return NewError(e.Error(), goerrors.CategoryOperation, textCode, map[string]any{"owner": owner})
}

func ObjectAborted(owner string) error {
	return &ObjectStateError{Owner: owner}
}

func ObjectFaulted(owner string) error {
	return &ObjectStateError{Owner: owner, Faulted: true}
}

type VersionMismatchError struct {
	Operation string
	Version   Version
}

func (e *VersionMismatchError) Error() string {
	if e == nil {
		return ErrVersionMismatch.Error()
	}
	return "core: " + strings.TrimSpace(e.Operation) + " requires " + string(Version11) + ", session uses " + string(e.Version)
}

func (e *VersionMismatchError) Unwrap() error {
	return ErrVersionMismatch
}

func (e *VersionMismatchError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{}
	if e != nil {
		metadata["operation"] = strings.TrimSpace(e.Operation)
		metadata["version"] = string(e.Version)
	}
	return NewError(e.Error(), goerrors.CategoryBadInput, ErrorVersionMismatch, metadata)
}

func VersionMismatch(operation string, version Version) error {
	return &VersionMismatchError{Operation: operation, Version: version}
}

// DefaultErrorMapper assigns stable text codes to any error leaving the
// library.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var fault *ProtocolFault
	if errors.As(err, &fault) {
		return fault.ToServiceError()
	}
	var stateErr *ObjectStateError
	if errors.As(err, &stateErr) {
		return stateErr.ToServiceError()
	}
	var versionErr *VersionMismatchError
	if errors.As(err, &versionErr) {
		return versionErr.ToServiceError()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrObjectAborted):
		return WrapError(err, goerrors.CategoryOperation, err.Error(), ErrorAborted, nil)
	case errors.Is(err, ErrObjectFaulted):
		return WrapError(err, goerrors.CategoryOperation, err.Error(), ErrorFaulted, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(err, goerrors.CategoryExternal, err.Error(), ErrorTimeout, nil)
	case errors.Is(err, context.Canceled):
		return WrapError(err, goerrors.CategoryOperation, err.Error(), ErrorCancelled, nil)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must be"):
		return WrapError(err, goerrors.CategoryBadInput, err.Error(), ErrorBadInput, nil)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return WrapError(err, goerrors.CategoryExternal, err.Error(), ErrorTimeout, nil)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryOperation:
		return ErrorProtocolFault
	case goerrors.CategoryExternal:
		return ErrorTimeout
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict, goerrors.CategoryOperation:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func ownerLabel(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "object"
	}
	return owner
}
