// ABOUTME: gRPC status helpers carrying machine-readable ErrorInfo reasons
// ABOUTME: Lets clients tell COURSE_FULL from ALREADY_ENROLLED without parsing text

package rpc

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the ErrorInfo domain stamped on every portal error.
const ErrorDomain = "portal.2389.dev"

// Reason values attached to status errors.
const (
	ReasonTokenMissing          = "TOKEN_MISSING"
	ReasonTokenMalformed        = "TOKEN_MALFORMED"
	ReasonTokenInvalid          = "TOKEN_INVALID"
	ReasonTokenExpired          = "TOKEN_EXPIRED"
	ReasonAuthorityUnavailable  = "AUTHORITY_UNAVAILABLE"
	ReasonForbidden             = "FORBIDDEN"
	ReasonInvalidCredentials    = "INVALID_CREDENTIALS"
	ReasonInvalidArgument       = "INVALID_ARGUMENT"
	ReasonUsernameTaken         = "USERNAME_TAKEN"
	ReasonCourseNotFound        = "COURSE_NOT_FOUND"
	ReasonCourseClosed          = "COURSE_CLOSED"
	ReasonCourseFull            = "COURSE_FULL"
	ReasonAlreadyEnrolled       = "ALREADY_ENROLLED"
	ReasonNotEnrolled           = "NOT_ENROLLED"
	ReasonAlreadyClaimed        = "ALREADY_CLAIMED"
	ReasonStoreUnavailable      = "STORE_UNAVAILABLE"
	ReasonDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	ReasonInternal              = "INTERNAL"
)

// Error builds a status error with an ErrorInfo detail. If the detail cannot
// be attached the plain status is returned.
func Error(code codes.Code, reason, msg string) error {
	st := status.New(code, msg)
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: reason,
		Domain: ErrorDomain,
	})
	if err != nil {
		return st.Err()
	}
	return withInfo.Err()
}

// ReasonOf extracts the ErrorInfo reason from err, or "" when there is none.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

// IsTransportFailure reports whether err means the remote side could not be
// reached or did not answer in time.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
		return true
	}
	return false
}
