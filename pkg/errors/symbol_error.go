package errors

import (
	"errors"
	"fmt"
)

// SymbolError attaches (symbol, market) context to a per-symbol failure
// during a universe pass. The pipeline collects these instead of aborting:
// one bad symbol never stops the pass, and the aggregate is reported at the
// end of the run.
type SymbolError struct {
	Symbol string
	Market string
	Err    error
}

// NewSymbolError creates a SymbolError wrapping err.
func NewSymbolError(symbol, market string, err error) *SymbolError {
	return &SymbolError{
		Symbol: symbol,
		Market: market,
		Err:    err,
	}
}

// Error implements the error interface.
func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Symbol, e.Market, e.Err)
}

// Unwrap returns the underlying error.
func (e *SymbolError) Unwrap() error {
	return e.Err
}

// AsSymbolError extracts a SymbolError from an error chain.
func AsSymbolError(err error) (*SymbolError, bool) {
	var se *SymbolError
	ok := errors.As(err, &se)

	return se, ok
}
