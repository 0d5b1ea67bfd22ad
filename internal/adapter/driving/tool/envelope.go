package tool

import (
	"errors"

	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// Error codes added by the dispatch layer on top of the controller's result
// codes.
const (
	CodeIntegrity          = "integrity_error"
	CodeStorageTimeout     = "storage_timeout"
	CodeStorageUnavailable = "storage_unavailable"
	CodeKeyNotSet          = "encryption_key_not_set"
	CodeUnknownTool        = "unknown_tool"
	CodeInvalidArguments   = "invalid_arguments"
	CodeInternal           = "internal_error"
)

// Envelope is the JSON shape of every tool response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the structured error of a failed call.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func failure(code, message string) Envelope {
	return Envelope{Error: &ErrorBody{Code: code, Message: message}}
}

// resulter is satisfied by every controller result through the embedded
// application.Outcome.
type resulter interface {
	Status() application.Outcome
}

func fromResult(r resulter) Envelope {
	o := r.Status()
	env := Envelope{Success: o.Success, Data: r}
	if o.Error != nil {
		env.Error = &ErrorBody{Code: o.Error.Code, Message: o.Error.Message}
	}
	return env
}

// fromError maps a controller error to an envelope. Messages of unexpected
// errors are replaced with a generic one.
func fromError(err error) Envelope {
	switch {
	case errors.Is(err, model.ErrIntegrity):
		return failure(CodeIntegrity, "stored credential failed its integrity check and was not returned")
	case errors.Is(err, model.ErrStorageTimeout):
		return failure(CodeStorageTimeout, "credential store did not respond in time")
	case errors.Is(err, model.ErrStorageUnavailable):
		return failure(CodeStorageUnavailable, "credential store is unavailable")
	case errors.Is(err, model.ErrEncryptionKeyNotSet):
		return failure(CodeKeyNotSet, model.ErrEncryptionKeyNotSet.Error())
	case errors.Is(err, model.ErrValidation):
		return failure(application.CodeValidation, err.Error())
	case errors.Is(err, model.ErrNotFound):
		return failure(application.CodeNotFound, err.Error())
	default:
		return failure(CodeInternal, "internal error")
	}
}
