package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	domainErrors "github.com/sajilopay/payments/internal/domain/errors"
)

// signedFieldNames is the fixed, ordered list of fields covered by the
// eSewa signature. Order is part of the contract: reordering yields a
// signature the gateway silently rejects.
const signedFieldNames = "total_amount,transaction_uuid,product_code"

// EsewaConfig holds the merchant credentials for the eSewa gateway.
// The secret key must never appear in logs, errors or response bodies.
type EsewaConfig struct {
	ProductCode string
	SecretKey   string
	TestMode    bool
}

func (c EsewaConfig) formURL() string {
	if c.TestMode {
		return "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	}
	return "https://epay.esewa.com.np/api/epay/main/v2/form"
}

func (c EsewaConfig) statusURL() string {
	if c.TestMode {
		return "https://rc.esewa.com.np/api/epay/transaction/status/"
	}
	return "https://epay.esewa.com.np/api/epay/transaction/status/"
}

// EsewaClient implements the redirect-form checkout flow and the
// status-lookup verification against eSewa.
type EsewaClient struct {
	cfg     EsewaConfig
	http    Doer
	timeout time.Duration
}

func NewEsewaClient(cfg EsewaConfig, opts ...ClientOption) *EsewaClient {
	o := newClientOptions(opts...)
	return &EsewaClient{cfg: cfg, http: o.http, timeout: o.timeout}
}

// SignatureMessage builds the canonical comma-joined message covered by
// the signature. totalAmount must already be the exact two-decimal
// string sent on the wire.
func SignatureMessage(totalAmount, transactionUUID, productCode string) string {
	return fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		totalAmount, transactionUUID, productCode)
}

// Sign computes the base64-encoded HMAC-SHA256 of message keyed by
// secretKey. Pure function: identical inputs yield identical output.
func Sign(secretKey, message string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RedirectFormRequest is the input for building a browser-submittable
// eSewa checkout form.
type RedirectFormRequest struct {
	Amount          float64
	TransactionUUID string
	SuccessURL      string
	FailureURL      string
}

// RedirectForm is the exact field set the browser must POST to the
// eSewa hosted payment page.
type RedirectForm struct {
	ActionURL string
	Fields    map[string]string
}

// BuildRedirectForm assembles the signed form payload. The zeroed
// tax/service/delivery triplet is fixed: this integration does not
// support split charges.
func (c *EsewaClient) BuildRedirectForm(req RedirectFormRequest) (*RedirectForm, error) {
	paisa, err := ToPaisa(req.Amount)
	if err != nil {
		return nil, err
	}
	txnUUID := strings.TrimSpace(req.TransactionUUID)
	if txnUUID == "" {
		return nil, domainErrors.ErrEmptyReference
	}

	total := FormatPaisa(paisa)
	signature := Sign(c.cfg.SecretKey, SignatureMessage(total, txnUUID, c.cfg.ProductCode))

	return &RedirectForm{
		ActionURL: c.cfg.formURL(),
		Fields: map[string]string{
			"amount":                  total,
			"tax_amount":              "0",
			"total_amount":            total,
			"transaction_uuid":        txnUUID,
			"product_code":            c.cfg.ProductCode,
			"product_service_charge":  "0",
			"product_delivery_charge": "0",
			"success_url":             req.SuccessURL,
			"failure_url":             req.FailureURL,
			"signed_field_names":      signedFieldNames,
			"signature":               signature,
		},
	}, nil
}

type esewaStatusRequest struct {
	ProductCode     string `json:"product_code"`
	TotalAmount     string `json:"total_amount"`
	TransactionUUID string `json:"transaction_uuid"`
}

type esewaStatusResponse struct {
	Status          string `json:"status"`
	RefID           string `json:"ref_id"`
	TotalAmount     string `json:"total_amount"`
	TransactionUUID string `json:"transaction_uuid"`
	ProductCode     string `json:"product_code"`
}

// Verify looks up the transaction on eSewa and establishes whether the
// user actually paid expectedAmount. Every check is a hard gate; see
// the ordered failure taxonomy in internal/domain/errors.
func (c *EsewaClient) Verify(ctx context.Context, transactionUUID string, expectedAmount float64) (*VerifiedTransaction, error) {
	ref := strings.TrimSpace(transactionUUID)
	if ref == "" {
		return nil, domainErrors.ErrEmptyReference
	}
	expectedPaisa, err := ToPaisa(expectedAmount)
	if err != nil {
		return nil, err
	}

	auth, err := basicAuth(c.cfg.ProductCode, c.cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(esewaStatusRequest{
		ProductCode:     c.cfg.ProductCode,
		TotalAmount:     FormatPaisa(expectedPaisa),
		TransactionUUID: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("encode status request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.statusURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Basic "+auth)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError("verification", c.timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode)
	}
	if !jsonContentType(resp) {
		return nil, domainErrors.ErrInvalidResponseFormat
	}

	var status esewaStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", domainErrors.ErrInvalidResponseFormat)
	}

	// eSewa documents no state machine beyond COMPLETE; every other
	// value fails with the literal status so callers can inspect it.
	if status.Status != "COMPLETE" {
		return nil, fmt.Errorf("%w: gateway status %q", domainErrors.ErrTransactionNotComplete, status.Status)
	}

	returnedPaisa, err := parsePaisa(status.TotalAmount)
	if err != nil {
		return nil, err
	}
	if returnedPaisa != expectedPaisa {
		return nil, fmt.Errorf("%w: expected %s NPR, gateway returned %s NPR",
			domainErrors.ErrAmountMismatch, FormatPaisa(expectedPaisa), FormatPaisa(returnedPaisa))
	}

	return &VerifiedTransaction{
		Provider:      ProviderEsewa,
		ReferenceID:   status.RefID,
		TransactionID: status.TransactionUUID,
		AmountPaisa:   returnedPaisa,
		Status:        status.Status,
	}, nil
}

// basicAuth builds the base64 Basic credentials. RFC 7617 limits them
// to Latin-1; wider runes fail with a generic error so no partial key
// material can surface through an encoding exception.
func basicAuth(merchantID, secretKey string) (string, error) {
	creds := merchantID + ":" + secretKey
	for _, r := range creds {
		if r > unicode.MaxLatin1 {
			return "", domainErrors.ErrInvalidCredentials
		}
	}
	return base64.StdEncoding.EncodeToString([]byte(creds)), nil
}
