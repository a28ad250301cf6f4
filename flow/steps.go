package flow

import "github.com/vitwit/presale/types"

// Step ids shared by the canned sequences.
const (
	StepConnect         = "connect"
	StepCheckBalance    = "check-balance"
	StepSendApproval    = "send-approval"
	StepConfirmApproval = "confirm-approval"
	StepCheckApproval   = "check-approval"
	StepPrepare         = "prepare"
	StepSend            = "send"
	StepVerify          = "verify"
	StepRecord          = "record"
)

// BuySteps is the 5-step purchase sequence for currencies that move funds
// directly, with no prior approval.
func BuySteps() []Step {
	return []Step{
		{ID: StepConnect, Title: "Connect wallet", Description: "Confirm the wallet connection"},
		{ID: StepPrepare, Title: "Prepare transaction", Description: "Build the purchase transaction"},
		{ID: StepSend, Title: "Send transaction", Description: "Sign and broadcast from your wallet"},
		{ID: StepVerify, Title: "Verify on-chain", Description: "Wait for chain confirmation"},
		{ID: StepRecord, Title: "Record purchase", Description: "Credit the purchased tokens"},
	}
}

// ApprovalSteps is the 4-step approval sequence that must complete before
// an allowance-gated purchase begins.
func ApprovalSteps() []Step {
	return []Step{
		{ID: StepConnect, Title: "Connect wallet", Description: "Confirm the wallet connection"},
		{ID: StepCheckBalance, Title: "Check balance", Description: "Verify the token balance covers the purchase"},
		{ID: StepSendApproval, Title: "Send approval", Description: "Authorize the presale contract to spend"},
		{ID: StepConfirmApproval, Title: "Confirm approval", Description: "Wait for the approval to confirm"},
	}
}

// ApprovedBuySteps is the 6-step purchase sequence that follows a
// completed approval flow.
func ApprovedBuySteps() []Step {
	return []Step{
		{ID: StepConnect, Title: "Connect wallet", Description: "Confirm the wallet connection"},
		{ID: StepCheckApproval, Title: "Check approval", Description: "Verify the spending allowance"},
		{ID: StepPrepare, Title: "Prepare transaction", Description: "Build the purchase transaction"},
		{ID: StepSend, Title: "Send transaction", Description: "Sign and broadcast from your wallet"},
		{ID: StepVerify, Title: "Verify on-chain", Description: "Wait for chain confirmation"},
		{ID: StepRecord, Title: "Record purchase", Description: "Credit the purchased tokens"},
	}
}

// ForPurchase returns the step machine for a {network, currency} pair:
// allowance-gated currencies get the 6-step sequence (the 4-step approval
// flow runs first as its own machine), everything else the 5-step one.
func ForPurchase(network types.Network, currency types.Currency) *Flow {
	if network.RequiresAllowance(currency) {
		return New(ApprovedBuySteps())
	}
	return New(BuySteps())
}

// ForApproval returns the approval-flow machine.
func ForApproval() *Flow {
	return New(ApprovalSteps())
}
