package types

import "errors"

// PresaleError is the structured error carried across package boundaries.
type PresaleError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *PresaleError) Error() string {
	return e.Message
}

// Error codes. ConfirmationTimeout is a soft failure: the transaction may
// still land on-chain, so callers must phrase it as "sent but unconfirmed"
// rather than "failed".
const (
	ErrUserRejectedSignature    = "USER_REJECTED_SIGNATURE"
	ErrInsufficientBalance      = "INSUFFICIENT_BALANCE"
	ErrInsufficientAllowance    = "INSUFFICIENT_ALLOWANCE"
	ErrConfirmationTimeout      = "CONFIRMATION_TIMEOUT"
	ErrVerificationFailed       = "VERIFICATION_FAILED"
	ErrLedgerWriteConflict      = "LEDGER_WRITE_CONFLICT"
	ErrSettlementTransferFailed = "SETTLEMENT_TRANSFER_FAILED"
	ErrUnsupportedNetwork       = "UNSUPPORTED_NETWORK"
	ErrNetworkError             = "NETWORK_ERROR"
	ErrConfigError              = "CONFIG_ERROR"
)

// CodeOf extracts the presale error code from an error chain, or "" when
// the error carries none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *PresaleError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
