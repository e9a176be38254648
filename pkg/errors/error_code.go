package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidRequest       ErrorCode = 102
	ErrCodeInvalidRange         ErrorCode = 103
	ErrCodeInvalidSchedule      ErrorCode = 104
	ErrCodeConfirmationDeclined ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeStrategyNotFound ErrorCode = 200
	ErrCodeSymbolNotFound   ErrorCode = 201
	ErrCodeOrderNotFound    ErrorCode = 202

	// Trading errors (500-599)
	ErrCodePlacementFailed  ErrorCode = 500
	ErrCodeQueryFailed      ErrorCode = 501
	ErrCodeCancelFailed     ErrorCode = 502
	ErrCodeCleanupFailed    ErrorCode = 503
	ErrCodePriceUnavailable ErrorCode = 504
)
