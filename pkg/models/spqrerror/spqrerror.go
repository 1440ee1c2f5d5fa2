package spqrerror

import (
	"errors"
	"fmt"
)

const (
	SPQR_UNEXPECTED            = "SPQRU"
	SPQR_NO_DATASOURCE         = "SPQRD"
	SPQR_UNSUPPORTED_STATEMENT = "SPQRV"
	SPQR_CONDITION_RESOLUTION  = "SPQRP"
	SPQR_ROUTE_COMPLEXITY      = "SPQRO"
	SPQR_CROSS_SHARD_QUERY     = "SPQRX"
	SPQR_FEDERATION_REQUIRED   = "SPQRF"
	SPQR_ALGORITHM_ERROR       = "SPQRA"
	SPQR_CONFIG_ERROR          = "SPQRC"
)

var existingErrorCodeMap = map[string]string{
	SPQR_NO_DATASOURCE:         "failed to match any data source",
	SPQR_UNSUPPORTED_STATEMENT: "unsupported statement under sharding rule",
	SPQR_CONDITION_RESOLUTION:  "sharding condition resolution error",
	SPQR_ROUTE_COMPLEXITY:      "route complexity exceeded",
	SPQR_CROSS_SHARD_QUERY:     "route violates post-route policy",
	SPQR_FEDERATION_REQUIRED:   "federation required but unavailable",
	SPQR_ALGORITHM_ERROR:       "sharding algorithm error",
	SPQR_CONFIG_ERROR:          "invalid sharding rule configuration",
}

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

var _ error = &SpqrError{}

type SpqrError struct {
	Err error

	ErrorCode string
}

// New returns an error with the given code and plain description.
func New(errorCode string, errorMsg string) *SpqrError {
	return &SpqrError{
		Err:       errors.New(errorMsg),
		ErrorCode: errorCode,
	}
}

func Newf(errorCode string, format string, a ...any) *SpqrError {
	return &SpqrError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

// NewByCode uses the registered code name as the description.
func NewByCode(errorCode string) *SpqrError {
	return New(errorCode, GetMessageByCode(errorCode))
}

func (er *SpqrError) Error() string {
	return fmt.Sprintf("Code: %s. Name: %s. Description: %s.",
		er.ErrorCode, GetMessageByCode(er.ErrorCode), er.Err)
}

func (er *SpqrError) Unwrap() error {
	return er.Err
}

// HasCode reports whether err, or anything it wraps, is a SpqrError with code.
func HasCode(err error, code string) bool {
	var se *SpqrError
	if errors.As(err, &se) {
		return se.ErrorCode == code
	}
	return false
}

// Code extracts the error code, or SPQR_UNEXPECTED for foreign errors.
func Code(err error) string {
	var se *SpqrError
	if errors.As(err, &se) {
		return se.ErrorCode
	}
	return SPQR_UNEXPECTED
}
