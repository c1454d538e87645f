package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/retry"
)

// satoshisPerBTC converts between BTC-denominated amounts and the satoshi
// units lnd speaks.
const satoshisPerBTC = 8

// LND is an invoice backend talking to an lnd node over its REST proxy.
// Invoice amounts are fixed and targets expire; the payment_request string
// is the target and the invoice r_hash (hex) is the backend reference.
type LND struct {
	baseURL     string
	macaroonHex string
	client      *http.Client
}

// Ensure LND implements the backend capability.
var _ PaymentBackend = (*LND)(nil)

// NewLND creates an LND backend for the REST proxy at baseURL. macaroonHex
// is the hex-encoded admin macaroon (invoice creation needs admin). A nil
// client gets a 30-second-timeout default; callers that need to trust
// lnd's self-signed certificate pass their own.
func NewLND(baseURL, macaroonHex string, client *http.Client) *LND {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &LND{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		macaroonHex: macaroonHex,
		client:      client,
	}
}

// Method identifies lightning payments in the ledger.
func (l *LND) Method() string { return "lightning" }

// Connect verifies the node is reachable, retrying per the policy. Nodes
// behind tunnels can take a while to come up, so this runs at startup
// rather than lazily on the first payment.
func (l *LND) Connect(ctx context.Context, policy retry.Policy) error {
	return policy.Do(ctx, "lnd connect", func(ctx context.Context) error {
		data, err := l.doRequest(ctx, http.MethodGet, "/v1/getinfo", nil)
		if err != nil {
			return err
		}

		var info struct {
			Alias string `json:"alias"`
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("unmarshal getinfo: %w", err)
		}
		slog.Info("connected to lnd", "alias", info.Alias)
		return nil
	})
}

// CreateTarget adds an invoice for the given BTC amount and returns its
// payment request plus the r_hash used to look the invoice up later.
func (l *LND) CreateTarget(ctx context.Context, amount decimal.Decimal) (string, string, error) {
	sats := amount.Shift(satoshisPerBTC).IntPart()

	body, err := json.Marshal(map[string]string{
		"value": strconv.FormatInt(sats, 10),
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal invoice request: %w", err)
	}

	data, err := l.doRequest(ctx, http.MethodPost, "/v1/invoices", body)
	if err != nil {
		return "", "", fmt.Errorf("add invoice: %w", err)
	}

	var invoice struct {
		PaymentRequest string `json:"payment_request"`
		RHash          string `json:"r_hash"`
	}
	if err := json.Unmarshal(data, &invoice); err != nil {
		return "", "", fmt.Errorf("unmarshal invoice: %w", err)
	}

	// lnd returns the hash base64-encoded; the lookup endpoint wants hex.
	rawHash, err := base64.StdEncoding.DecodeString(invoice.RHash)
	if err != nil {
		return "", "", fmt.Errorf("decode r_hash: %w", err)
	}

	return invoice.PaymentRequest, hex.EncodeToString(rawHash), nil
}

// AmountReceived looks up the invoice behind ref and reports the settled
// amount in BTC. Lightning settlement is atomic, so there is no
// unconfirmed tier; the second amount is always zero.
func (l *LND) AmountReceived(ctx context.Context, ref string) (decimal.Decimal, decimal.Decimal, error) {
	data, err := l.doRequest(ctx, http.MethodGet, "/v1/invoice/"+ref, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("lookup invoice: %w", err)
	}

	var invoice struct {
		AmtPaidSat string `json:"amt_paid_sat"`
	}
	if err := json.Unmarshal(data, &invoice); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unmarshal invoice: %w", err)
	}
	if invoice.AmtPaidSat == "" {
		return decimal.Zero, decimal.Zero, nil
	}

	sats, err := strconv.ParseInt(invoice.AmtPaidSat, 10, 64)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse amt_paid_sat %q: %w", invoice.AmtPaidSat, err)
	}

	return decimal.New(sats, -satoshisPerBTC), decimal.Zero, nil
}

func (l *LND) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if l.macaroonHex != "" {
		req.Header.Set("Grpc-Metadata-macaroon", l.macaroonHex)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("lnd error %d: %s", resp.StatusCode, data)
	}

	return data, nil
}
