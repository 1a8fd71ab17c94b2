package core

// errors.go defines the failure taxonomy of an ingest run.
//
// Every run failure is reported with a short code so that an operator reading
// logs or the ops API can tell failure classes apart at a glance:
//
//	FETCH001 - Catalog fetch failed after retries (run aborted)
//	CAT001   - Catalog document has an unexpected shape (run aborted)
//	READ001  - Destination table could not be read (run aborted)
//	PLAN001  - Full replace with no candidate rows refused (nothing written)
//	WRITE001 - Destination write failed (logged, next run retries)
//	WRITE002 - Destination reported a different row count than expected
//	RUN001   - A run is already in progress
//	ERR000   - Anything else
//
// Sentinels are matched with errors.Is. When the chain carries no sentinel,
// the message is matched case-insensitively against known patterns, first
// match wins.

import (
	"errors"
	"strings"
)

var (
	// ErrFetch wraps a catalog document that could not be retrieved.
	ErrFetch = errors.New("catalog fetch failed")

	// ErrMalformedCatalog wraps a catalog document missing expected keys.
	ErrMalformedCatalog = errors.New("malformed catalog document")

	// ErrPersistedRead wraps a failure reading the destination table.
	ErrPersistedRead = errors.New("read persisted rows")

	// ErrEmptyReplace is returned when a full replace would write zero rows.
	ErrEmptyReplace = errors.New("refusing to replace table with an empty candidate set")

	// ErrWrite wraps a failed destination write command.
	ErrWrite = errors.New("write to destination failed")

	// ErrRowCountMismatch reports a write whose affected-row count differs
	// from the number of rows sent.
	ErrRowCountMismatch = errors.New("unexpected ingestion size")

	// ErrRunInProgress is returned when a run is triggered while another one
	// is still executing.
	ErrRunInProgress = errors.New("ingest run already in progress")
)

// ErrorInfo describes a failure class for operators.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var defaultErrorInfo = ErrorInfo{Code: "ERR000", Message: "An unexpected error occurred"}

var sentinelErrors = []struct {
	err  error
	info ErrorInfo
}{
	{ErrFetch, ErrorInfo{Code: "FETCH001", Message: "Catalog could not be fetched"}},
	{ErrMalformedCatalog, ErrorInfo{Code: "CAT001", Message: "Catalog document has an unexpected shape"}},
	{ErrPersistedRead, ErrorInfo{Code: "READ001", Message: "Destination table could not be read"}},
	{ErrEmptyReplace, ErrorInfo{Code: "PLAN001", Message: "Empty full replace refused"}},
	{ErrWrite, ErrorInfo{Code: "WRITE001", Message: "Destination write failed"}},
	{ErrRowCountMismatch, ErrorInfo{Code: "WRITE002", Message: "Destination row count mismatch"}},
	{ErrRunInProgress, ErrorInfo{Code: "RUN001", Message: "A run is already in progress"}},
}

// errorPatterns catches errors that reached us without a sentinel, mostly
// raw transport and context failures.
var errorPatterns = []struct {
	pattern string
	info    ErrorInfo
}{
	{"context deadline exceeded", ErrorInfo{Code: "ERR001", Message: "Run timed out"}},
	{"context canceled", ErrorInfo{Code: "ERR002", Message: "Run was cancelled"}},
	{"connection refused", ErrorInfo{Code: "ERR003", Message: "Remote endpoint refused the connection"}},
}

// MapError classifies err. A nil error maps to the zero ErrorInfo.
func MapError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}

	for _, s := range sentinelErrors {
		if errors.Is(err, s.err) {
			return s.info
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(errStr, p.pattern) {
			return p.info
		}
	}

	return defaultErrorInfo
}
