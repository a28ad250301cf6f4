// Package identity adapts the external identity collaborator: payout
// wallet lookups for referrers. Session and account management stay with
// that service; the pipeline only reads wallet state.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPDirectory resolves payout wallets from the identity service.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory builds a directory over the identity service base URL.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// PayoutWallet returns the user's payout wallet address and whether
// ownership has been verified. Wallet-only signups that never linked a
// payout wallet come back unverified with an empty address.
func (d *HTTPDirectory) PayoutWallet(ctx context.Context, userID string) (string, bool, error) {
	url := fmt.Sprintf("%s/users/%s/payout-wallet", d.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var out struct {
		Address  string `json:"address"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("invalid identity response: %w", err)
	}
	return out.Address, out.Verified, nil
}
