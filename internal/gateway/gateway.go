// Package gateway implements the server-to-server integrations with the
// eSewa and Khalti payment gateways: redirect-form signing, payment
// initiation and transaction verification with integer-paisa amount
// cross-checks. The package holds no state between calls and never
// reads the environment; configuration is passed in explicitly.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	domainErrors "github.com/sajilopay/payments/internal/domain/errors"
)

// Provider identifies a supported payment gateway.
type Provider string

const (
	ProviderEsewa  Provider = "esewa"
	ProviderKhalti Provider = "khalti"
)

// DefaultTimeout bounds every outbound gateway call.
const DefaultTimeout = 10 * time.Second

// Doer issues a single HTTP request. *http.Client satisfies it; tests
// substitute recording or hanging transports.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// VerifiedTransaction is the normalized result of a successful
// verification lookup, kept for the caller's audit trail.
type VerifiedTransaction struct {
	Provider      Provider
	ReferenceID   string
	TransactionID string
	AmountPaisa   int64
	Status        string
	FeePaisa      *int64
	Refunded      *bool
}

type clientOptions struct {
	http    Doer
	timeout time.Duration
}

// ClientOption customizes a gateway client.
type ClientOption func(*clientOptions)

// WithHTTPClient replaces the transport. Used by tests to count or
// stall outbound requests.
func WithHTTPClient(d Doer) ClientOption {
	return func(o *clientOptions) { o.http = d }
}

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

func newClientOptions(opts ...ClientOption) clientOptions {
	o := clientOptions{
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// transportError maps a failed round trip to the structured taxonomy:
// a deadline hit is distinguishable from a generic network failure so
// callers can retry initiation. The underlying error text is dropped
// on purpose; it may echo gateway internals and is of no use to users.
func transportError(op string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gateway %s timeout (%s): %w", op, timeout, domainErrors.ErrGatewayTimeout)
	}
	return fmt.Errorf("gateway %s request failed: %w", op, domainErrors.ErrGatewayUnavailable)
}

func statusError(code int) error {
	return fmt.Errorf("gateway returned status %d: %w", code, domainErrors.ErrGatewayUnavailable)
}

// jsonContentType validates the response Content-Type before any body
// parsing. A misconfigured endpoint or an outage page returning HTML
// must fail here, not as a confusing JSON decode error.
func jsonContentType(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}
