package middleware

// unknownRoute labels requests that matched no registered route.
const unknownRoute = "unknown"

// Error response bodies.
const (
	// ErrInternalServerError is the body written for recovered panics.
	ErrInternalServerError = `{"error":"internal server error"}`
)

// defaultSkipPaths are operational endpoints left out of request logs.
var defaultSkipPaths = []string{"/metrics", "/health", "/ready", "/live"}

func routeOf(fullPath string) string {
	if fullPath == "" {
		return unknownRoute
	}
	return fullPath
}
