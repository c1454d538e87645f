package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eddiepease/SatSale/internal/models"
)

// Notifier delivers settlement notifications to merchant webhooks.
type Notifier struct {
	client *http.Client
}

// NewNotifier creates a notifier. A nil client gets a short-timeout
// default so a slow webhook endpoint cannot stall the polling loop.
func NewNotifier(client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{client: client}
}

// webhookPayload is the JSON body posted to the merchant on confirmation.
type webhookPayload struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Method          string `json:"method"`
	FiatValue       string `json:"fiat_value"`
	CryptoValue     string `json:"crypto_value"`
	ConfirmedAmount string `json:"confirmed_amount"`
}

// PaymentConfirmed posts the record's id and final amounts to its webhook
// URL. Callers treat failure as best-effort: a lost notification never
// changes settlement truth in the ledger.
func (n *Notifier) PaymentConfirmed(ctx context.Context, rec models.PaymentRecord) error {
	payload := webhookPayload{
		ID:              rec.ID,
		Status:          string(rec.Status),
		Method:          rec.Method,
		FiatValue:       rec.FiatValue.String(),
		CryptoValue:     rec.CryptoValue.String(),
		ConfirmedAmount: rec.ConfirmedAmount.String(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
