package clients

const (
	// -----------------------------
	// REFERENCE RESOLUTION
	// -----------------------------
	ErrInvalidReference     = "invalid_transaction_reference"
	ErrUnexpectedRPCFailure = "unexpected_rpc_failure"

	// -----------------------------
	// ALLOWANCE / APPROVAL
	// -----------------------------
	ErrNoOperatorKey    = "no_operator_key_configured"
	ErrApprovalReverted = "approval_transaction_reverted"

	// -----------------------------
	// BONUS PAYOUT
	// -----------------------------
	ErrPayoutBuildFailed         = "payout_transaction_build_failed"
	ErrPayoutBroadcastFailed     = "payout_broadcast_failed"
	ErrPayoutConfirmationTimeout = "payout_confirmation_timed_out"
)
