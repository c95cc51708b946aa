package utils

// Error codes returned in the "code" field of http error bodies.
const (
	ErrorTokenAuthFail      = 4001
	ErrorUnauthenticated    = 4010
	ErrorNotFound           = 4040
	ErrorBadRequest         = 4000
	ErrorPreconditionFailed = 4120
	ErrorBackendFailure     = 5020
	ErrorInternal           = 5000
)
