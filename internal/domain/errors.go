package domain

import "errors"

// Command rejection taxonomy. Every rejection is local and non-fatal: the
// engine's state remains exactly as it was before the rejected command.
var (
	// ErrInsufficientFunds rejects a command that would overdraw the
	// quote currency balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientBalance rejects a command that would overdraw a
	// crypto holding.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidInput rejects non-positive amounts, leverage below 1,
	// missing limit prices and malformed market symbols.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPriceUnavailable rejects a command when no valid tick has been
	// received yet for the target market.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrAlreadyProcessing rejects a close while another close of the
	// same position is still in flight. The caller must not retry
	// automatically.
	ErrAlreadyProcessing = errors.New("position close already processing")

	// ErrUnknownPosition rejects a close of a position id that does not
	// exist (possibly already closed or liquidated).
	ErrUnknownPosition = errors.New("unknown position")
)
