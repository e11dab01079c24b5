package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidMarket        ErrorCode = 102
	ErrCodeInvalidPeriod        ErrorCode = 103
	ErrCodeInvalidDate          ErrorCode = 104
	ErrCodeInvalidRiskProfile   ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound     ErrorCode = 200
	ErrCodeStoreUnavailable ErrorCode = 201
	ErrCodeQueryFailed      ErrorCode = 202
	ErrCodeSnapshotMissing  ErrorCode = 203

	// Indicator errors (300-399)
	ErrCodeIndicatorCalculation ErrorCode = 300

	// Signal errors (400-499)
	ErrCodeScoringFailed ErrorCode = 400

	// Stop-loss errors (500-599)
	ErrCodePositionNotFound ErrorCode = 500
	ErrCodeStopStateFailed  ErrorCode = 501

	// Pipeline errors (600-699)
	ErrCodePipelineAlreadyRan ErrorCode = 600
	ErrCodePipelineFailed     ErrorCode = 601
	ErrCodeJobFailed          ErrorCode = 602

	// Market data errors (700-799)
	ErrCodeBarFetchFailed     ErrorCode = 700
	ErrCodeBarParseFailed     ErrorCode = 701
	ErrCodeInvalidProvider    ErrorCode = 702
	ErrCodeUnsupportedMarket  ErrorCode = 703
	ErrCodeProviderRateLimit  ErrorCode = 704
	ErrCodeProviderWriteError ErrorCode = 705
)
