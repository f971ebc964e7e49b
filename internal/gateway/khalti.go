package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/sajilopay/payments/internal/domain/errors"
)

// KhaltiConfig holds the merchant credentials for the Khalti gateway.
type KhaltiConfig struct {
	SecretKey string
	TestMode  bool
}

func (c KhaltiConfig) initiateURL() string {
	if c.TestMode {
		return "https://dev.khalti.com/api/v2/epayment/initiate/"
	}
	return "https://khalti.com/api/v2/epayment/initiate/"
}

func (c KhaltiConfig) lookupURL() string {
	if c.TestMode {
		return "https://dev.khalti.com/api/v2/epayment/lookup/"
	}
	return "https://khalti.com/api/v2/epayment/lookup/"
}

// KhaltiClient implements the token-based initiate/lookup flow against
// Khalti. Amounts on the wire are integer paisa.
type KhaltiClient struct {
	cfg     KhaltiConfig
	http    Doer
	timeout time.Duration
}

func NewKhaltiClient(cfg KhaltiConfig, opts ...ClientOption) *KhaltiClient {
	o := newClientOptions(opts...)
	return &KhaltiClient{cfg: cfg, http: o.http, timeout: o.timeout}
}

// CustomerInfo identifies the paying customer to Khalti.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// InitiateRequest is the input for starting a Khalti payment.
type InitiateRequest struct {
	Amount            float64
	PurchaseOrderID   string
	PurchaseOrderName string
	ReturnURL         string
	WebsiteURL        string
	Customer          CustomerInfo
}

// Initiation is the result of a successful initiate call. Pidx is the
// provider-issued reference; that exact string must be passed to
// Verify later.
type Initiation struct {
	Pidx       string
	PaymentURL string
	ExpiresAt  string
	ExpiresIn  int
}

type khaltiInitiateRequest struct {
	ReturnURL         string       `json:"return_url"`
	WebsiteURL        string       `json:"website_url"`
	Amount            int64        `json:"amount"`
	PurchaseOrderID   string       `json:"purchase_order_id"`
	PurchaseOrderName string       `json:"purchase_order_name"`
	CustomerInfo      CustomerInfo `json:"customer_info"`
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
	ExpiresIn  int    `json:"expires_in"`
}

// Initiate starts a payment. Amount bounds are checked before any
// network call; an out-of-range amount never reaches the gateway.
func (c *KhaltiClient) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	paisa, err := ToPaisa(req.Amount)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(khaltiInitiateRequest{
		ReturnURL:         req.ReturnURL,
		WebsiteURL:        req.WebsiteURL,
		Amount:            paisa,
		PurchaseOrderID:   req.PurchaseOrderID,
		PurchaseOrderName: req.PurchaseOrderName,
		CustomerInfo:      req.Customer,
	})
	if err != nil {
		return nil, fmt.Errorf("encode initiate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, c.cfg.initiateURL(), body, "initiation")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return nil, rejectionError(resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode)
	}
	if !jsonContentType(resp) {
		return nil, domainErrors.ErrInvalidResponseFormat
	}

	var initiation khaltiInitiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&initiation); err != nil {
		return nil, fmt.Errorf("decode initiate response: %w", domainErrors.ErrInvalidResponseFormat)
	}
	if initiation.Pidx == "" || initiation.PaymentURL == "" {
		return nil, domainErrors.ErrMissingResponseFields
	}

	return &Initiation{
		Pidx:       initiation.Pidx,
		PaymentURL: initiation.PaymentURL,
		ExpiresAt:  initiation.ExpiresAt,
		ExpiresIn:  initiation.ExpiresIn,
	}, nil
}

// khaltiStatuses is the closed set of lookup states Khalti documents.
// Anything outside it indicates integration drift and fails hard.
var khaltiStatuses = map[string]struct{}{
	"Completed":     {},
	"Pending":       {},
	"User canceled": {},
	"Expired":       {},
	"Refunded":      {},
}

type khaltiLookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"total_amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Fee           *int64 `json:"fee"`
	Refunded      *bool  `json:"refunded"`
}

// Verify looks up pidx and establishes whether the payment completed
// for exactly expectedAmount. Read-only and safe to call repeatedly.
func (c *KhaltiClient) Verify(ctx context.Context, pidx string, expectedAmount float64) (*VerifiedTransaction, error) {
	ref := strings.TrimSpace(pidx)
	if ref == "" {
		return nil, domainErrors.ErrEmptyReference
	}
	expectedPaisa, err := ToPaisa(expectedAmount)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"pidx": ref})
	if err != nil {
		return nil, fmt.Errorf("encode lookup request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, c.cfg.lookupURL(), body, "verification")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode)
	}
	if !jsonContentType(resp) {
		return nil, domainErrors.ErrInvalidResponseFormat
	}

	var lookup khaltiLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", domainErrors.ErrInvalidResponseFormat)
	}

	if _, known := khaltiStatuses[lookup.Status]; !known {
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrUnknownStatus, lookup.Status)
	}
	if lookup.Status != "Completed" {
		// Surface the literal status so callers can tell "still
		// pending" from "cancelled by user" from "refunded".
		return nil, fmt.Errorf("%w: gateway status %q", domainErrors.ErrTransactionNotComplete, lookup.Status)
	}

	if lookup.TotalAmount != expectedPaisa {
		return nil, fmt.Errorf("%w: expected %s NPR, gateway returned %s NPR",
			domainErrors.ErrAmountMismatch, FormatPaisa(expectedPaisa), FormatPaisa(lookup.TotalAmount))
	}

	referenceID := lookup.Pidx
	if referenceID == "" {
		referenceID = ref
	}
	return &VerifiedTransaction{
		Provider:      ProviderKhalti,
		ReferenceID:   referenceID,
		TransactionID: lookup.TransactionID,
		AmountPaisa:   lookup.TotalAmount,
		Status:        lookup.Status,
		FeePaisa:      lookup.Fee,
		Refunded:      lookup.Refunded,
	}, nil
}

// post issues an authenticated JSON POST. The caller owns the deadline
// on ctx so it also covers reading the response body.
func (c *KhaltiClient) post(ctx context.Context, url string, body []byte, op string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Key "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, c.timeout, err)
	}
	return resp, nil
}

// rejectionError extracts the detail of a 400 response. Khalti reports
// request-level problems there; anything unparseable falls back to a
// generic rejection.
func rejectionError(resp *http.Response) error {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Detail != "" {
			return fmt.Errorf("%w: %s", domainErrors.ErrPaymentRejected, body.Detail)
		}
		if body.Message != "" {
			return fmt.Errorf("%w: %s", domainErrors.ErrPaymentRejected, body.Message)
		}
	}
	return domainErrors.ErrPaymentRejected
}
