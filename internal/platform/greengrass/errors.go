package greengrass

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"
	"github.com/sony/gobreaker"
)

// API error codes returned by the Greengrass v2 control plane.
const (
	codeConflict       = "ConflictException"
	codeNotFound       = "ResourceNotFoundException"
	codeValidation     = "ValidationException"
	codeAccessDenied   = "AccessDeniedException"
	codeThrottling     = "ThrottlingException"
	codeInternal       = "InternalServerException"
	codeRequestLimit   = "RequestLimitExceeded"
	codeServiceUnavail = "ServiceUnavailableException"
)

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsConflict reports whether the resource already exists.
func IsConflict(err error) bool {
	return apiErrorCode(err) == codeConflict
}

// IsNotFound reports whether the resource does not exist.
func IsNotFound(err error) bool {
	return apiErrorCode(err) == codeNotFound
}

// IsValidation reports whether the request was rejected as malformed.
func IsValidation(err error) bool {
	return apiErrorCode(err) == codeValidation
}

// IsBreakerOpen reports whether the call was refused by the open breaker.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsTransient reports whether retrying the call may succeed: throttling,
// server-side failures, an open breaker and errors that never reached the
// service (network failures). Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsBreakerOpen(err) {
		return true
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	switch apiErr.ErrorCode() {
	case codeThrottling, codeInternal, codeRequestLimit, codeServiceUnavail:
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer
}
