package flow

import (
	"testing"

	"github.com/vitwit/presale/types"
)

func TestAdvanceWalksSequence(t *testing.T) {
	f := New(BuySteps())

	if err := f.SetCurrentStep(StepConnect); err != nil {
		t.Fatalf("SetCurrentStep: %v", err)
	}
	if got := f.CurrentStep(); got != StepConnect {
		t.Fatalf("current step = %s, want %s", got, StepConnect)
	}

	for i := 0; i < len(BuySteps()); i++ {
		f.Advance()
	}

	if !f.IsComplete() {
		t.Fatal("machine should be complete after advancing past the last step")
	}
	for _, step := range f.Snapshot() {
		if step.Status != StepSuccess {
			t.Fatalf("step %s status = %s, want success", step.ID, step.Status)
		}
	}
}

func TestFailLatchesError(t *testing.T) {
	f := New(BuySteps())
	if err := f.SetCurrentStep(StepSend); err != nil {
		t.Fatalf("SetCurrentStep: %v", err)
	}
	if err := f.Fail(StepSend, "user rejected the signature"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if !f.IsError() {
		t.Fatal("machine should report error")
	}
	if f.IsComplete() {
		t.Fatal("failed machine must not be complete")
	}

	var failed Step
	for _, step := range f.Snapshot() {
		if step.ID == StepSend {
			failed = step
		}
	}
	if failed.Status != StepError || failed.ErrorMessage != "user rejected the signature" {
		t.Fatalf("failed step = %+v", failed)
	}

	// Other steps are untouched; stopping is the caller's job.
	for _, step := range f.Snapshot() {
		if step.ID != StepSend && step.Status == StepError {
			t.Fatalf("step %s unexpectedly errored", step.ID)
		}
	}
}

func TestResetClearsEverything(t *testing.T) {
	f := New(ApprovalSteps())
	_ = f.SetCurrentStep(StepConnect)
	f.Advance()
	_ = f.Fail(StepCheckBalance, "boom")

	f.Reset()

	if f.IsError() || f.IsComplete() {
		t.Fatal("reset machine must be neither errored nor complete")
	}
	if f.CurrentStep() != "" {
		t.Fatalf("reset machine has current step %s", f.CurrentStep())
	}
	for _, step := range f.Snapshot() {
		if step.Status != StepPending || step.ErrorMessage != "" {
			t.Fatalf("step %s not reset: %+v", step.ID, step)
		}
	}
}

func TestFailUnknownStep(t *testing.T) {
	f := New(BuySteps())
	if err := f.Fail("no-such-step", "x"); err == nil {
		t.Fatal("expected error for unknown step")
	}
}

func TestSequenceShapes(t *testing.T) {
	if got := len(BuySteps()); got != 5 {
		t.Fatalf("buy sequence has %d steps, want 5", got)
	}
	if got := len(ApprovalSteps()); got != 4 {
		t.Fatalf("approval sequence has %d steps, want 4", got)
	}
	if got := len(ApprovedBuySteps()); got != 6 {
		t.Fatalf("approved buy sequence has %d steps, want 6", got)
	}
}

func TestForPurchaseSelectsSequence(t *testing.T) {
	cases := []struct {
		network  types.Network
		currency types.Currency
		steps    int
	}{
		{types.NetworkBase, types.CurrencyStable, 6},
		{types.NetworkBase, types.CurrencyNative, 5},
		{types.NetworkSolanaMainnet, types.CurrencyStable, 5},
		{types.NetworkSolanaMainnet, types.CurrencyNative, 5},
	}
	for _, tc := range cases {
		f := ForPurchase(tc.network, tc.currency)
		if got := len(f.Snapshot()); got != tc.steps {
			t.Errorf("%s/%s: %d steps, want %d", tc.network, tc.currency, got, tc.steps)
		}
	}
}
