// Package util holds the error values and input checks shared by the
// gateway and the resource services.
//
// Sentinels name the failure kinds that decide a response status, and
// callers test them with errors.Is:
//
//   - ErrNotFound: the requested record does not exist
//   - ErrInvalidInput: a path or query parameter did not parse
//   - ErrTimeout: a call exceeded its bound
//   - ErrUnreachable: transport-level failure
//   - ErrUpstreamStatus: unexpected status from a backend
//   - ErrDecode: payload did not match the expected shape
//   - ErrCanceled: the caller went away
//   - ErrFatal: unexpected internal failure
//
// Richer failures are types that wrap a sentinel. ConfigError matches
// ErrConfigInvalid; downstream.Error carries the service and status.
// Ad-hoc context uses fmt.Errorf with %w.
//
// The validators back config validation:
//
//	if err := util.ValidateURL(baseURL); err != nil {
//	    // reject downstream.services.user.baseURL
//	}
package util
