package speech

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParam marks vendor errors caused by client-side parameter
// validation, before any request is sent.
var ErrInvalidParam = errors.New("invalid parameter")

// VendorError describes a failed interaction with a speech vendor: a
// network failure, an authentication failure, or an invalid parameter.
// It propagates unmodified through every layer; nothing retries it.
type VendorError struct {
	Service    string
	Op         string // "synthesize", "voices", ...
	StatusCode int    // HTTP status, 0 when no response was received
	Message    string // vendor-reported detail, when available
	Err        error  // wrapped cause
}

func (e *VendorError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString("vendor request failed")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	return b.String()
}

func (e *VendorError) Unwrap() error { return e.Err }

// IsAuth reports whether the vendor rejected the credentials.
func (e *VendorError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsRateLimited reports whether the vendor throttled the request.
func (e *VendorError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsInvalidParam reports whether the request carried a parameter the vendor
// (or client-side validation) rejected.
func (e *VendorError) IsInvalidParam() bool {
	return e.StatusCode == 400 || e.StatusCode == 422 || errors.Is(e.Err, ErrInvalidParam)
}

// NewVendorError builds a VendorError for a failed vendor call.
func NewVendorError(service, op string, statusCode int, message string, err error) *VendorError {
	return &VendorError{
		Service:    service,
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// InvalidParamf builds a client-side validation VendorError.
func InvalidParamf(service, format string, args ...any) *VendorError {
	return &VendorError{
		Service: service,
		Message: fmt.Sprintf(format, args...),
		Err:     ErrInvalidParam,
	}
}
