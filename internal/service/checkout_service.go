package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/sajilopay/payments/internal/domain/errors"
	"github.com/sajilopay/payments/internal/gateway"
	"github.com/sajilopay/payments/internal/infrastructure/observability"
	"github.com/sajilopay/payments/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// CheckoutService orchestrates the gateway clients. It owns the
// resilience policy: a circuit breaker per provider, and bounded
// retries for Khalti initiation on transport failures only.
// Verification is never retried here; a failed verification must be
// inspected by the caller, since blind retries could mask fraud.
type CheckoutService struct {
	esewa    *gateway.EsewaClient
	khalti   *gateway.KhaltiClient
	retryCfg retry.Config
	metrics  *observability.Metrics
	logger   zerolog.Logger

	initiateBreaker *gobreaker.CircuitBreaker[*gateway.Initiation]
	verifyBreakers  map[gateway.Provider]*gobreaker.CircuitBreaker[*gateway.VerifiedTransaction]
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(
	esewa *gateway.EsewaClient,
	khalti *gateway.KhaltiClient,
	retryCfg retry.Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CheckoutService {
	s := &CheckoutService{
		esewa:    esewa,
		khalti:   khalti,
		retryCfg: retryCfg,
		metrics:  metrics,
		logger:   logger,
	}

	s.initiateBreaker = gobreaker.NewCircuitBreaker[*gateway.Initiation](
		s.breakerSettings("khalti-initiate"))
	s.verifyBreakers = map[gateway.Provider]*gobreaker.CircuitBreaker[*gateway.VerifiedTransaction]{
		gateway.ProviderEsewa:  gobreaker.NewCircuitBreaker[*gateway.VerifiedTransaction](s.breakerSettings("esewa-verify")),
		gateway.ProviderKhalti: gobreaker.NewCircuitBreaker[*gateway.VerifiedTransaction](s.breakerSettings("khalti-verify")),
	}
	return s
}

func (s *CheckoutService) breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		// Only transport failures count against the breaker. A declined
		// or mismatched payment is the gateway working correctly.
		IsSuccessful: func(err error) bool {
			return err == nil || !domainErrors.Transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if s.metrics != nil {
				s.metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			}
			s.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
}

func breakerStateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// EsewaCheckoutInput is the input for starting an eSewa checkout.
type EsewaCheckoutInput struct {
	Amount     float64
	SuccessURL string
	FailureURL string
}

// EsewaCheckout carries the generated transaction UUID (the caller
// must persist it to verify the payment later) and the signed form.
type EsewaCheckout struct {
	TransactionUUID string
	Form            *gateway.RedirectForm
}

// BeginEsewaCheckout generates a fresh transaction UUID and builds the
// signed redirect form. No network call is involved.
func (s *CheckoutService) BeginEsewaCheckout(ctx context.Context, in EsewaCheckoutInput) (*EsewaCheckout, error) {
	txnUUID := uuid.New().String()

	form, err := s.esewa.BuildRedirectForm(gateway.RedirectFormRequest{
		Amount:          in.Amount,
		TransactionUUID: txnUUID,
		SuccessURL:      in.SuccessURL,
		FailureURL:      in.FailureURL,
	})
	if err != nil {
		s.logger.Warn().Err(err).Float64("amount", in.Amount).Msg("esewa checkout rejected")
		return nil, err
	}

	s.logger.Info().
		Str("transaction_uuid", txnUUID).
		Float64("amount", in.Amount).
		Msg("esewa checkout form built")
	return &EsewaCheckout{TransactionUUID: txnUUID, Form: form}, nil
}

// KhaltiCheckoutInput is the input for starting a Khalti checkout.
type KhaltiCheckoutInput struct {
	Amount     float64
	OrderID    string
	OrderName  string
	ReturnURL  string
	WebsiteURL string
	Customer   gateway.CustomerInfo
}

// BeginKhaltiCheckout initiates a Khalti payment through the circuit
// breaker, retrying transport failures up to the configured bound.
func (s *CheckoutService) BeginKhaltiCheckout(ctx context.Context, in KhaltiCheckoutInput) (*gateway.Initiation, error) {
	req := gateway.InitiateRequest{
		Amount:            in.Amount,
		PurchaseOrderID:   in.OrderID,
		PurchaseOrderName: in.OrderName,
		ReturnURL:         in.ReturnURL,
		WebsiteURL:        in.WebsiteURL,
		Customer:          in.Customer,
	}

	retryCfg := s.retryCfg
	retryCfg.RetryIf = domainErrors.Transient

	start := time.Now()
	initiation, err := retry.DoWithResult(ctx, retryCfg, func() (*gateway.Initiation, error) {
		res, err := s.initiateBreaker.Execute(func() (*gateway.Initiation, error) {
			return s.khalti.Initiate(ctx, req)
		})
		return res, mapBreakerErr(err)
	})
	s.observeGateway(gateway.ProviderKhalti, "initiate", start, err)

	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", in.OrderID).Msg("khalti initiation failed")
		return nil, err
	}

	s.logger.Info().
		Str("order_id", in.OrderID).
		Str("pidx", initiation.Pidx).
		Msg("khalti payment initiated")
	return initiation, nil
}

// ConfirmPayment verifies the gateway-side transaction state for
// reference against the expected amount. Safe to call repeatedly: it
// performs no mutation, only a gateway read.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, provider gateway.Provider, reference string, amount float64) (*gateway.VerifiedTransaction, error) {
	breaker, ok := s.verifyBreakers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrUnknownProvider, provider)
	}

	start := time.Now()
	txn, err := breaker.Execute(func() (*gateway.VerifiedTransaction, error) {
		switch provider {
		case gateway.ProviderEsewa:
			return s.esewa.Verify(ctx, reference, amount)
		default:
			return s.khalti.Verify(ctx, reference, amount)
		}
	})
	err = mapBreakerErr(err)
	s.observeGateway(provider, "verify", start, err)

	if err != nil {
		s.recordVerificationFailure(provider, reference, err)
		return nil, err
	}

	s.logger.Info().
		Str("provider", string(provider)).
		Str("reference", txn.ReferenceID).
		Str("transaction_id", txn.TransactionID).
		Int64("amount_paisa", txn.AmountPaisa).
		Msg("payment verified")
	return txn, nil
}

func (s *CheckoutService) recordVerificationFailure(provider gateway.Provider, reference string, err error) {
	reason := failureReason(err)
	if s.metrics != nil {
		s.metrics.VerificationFailures.WithLabelValues(string(provider), reason).Inc()
	}

	if errors.Is(err, domainErrors.ErrAmountMismatch) {
		if s.metrics != nil {
			s.metrics.AmountMismatches.WithLabelValues(string(provider)).Inc()
		}
		// Treated as a fraud signal, not a user error.
		s.logger.Error().Err(err).
			Str("provider", string(provider)).
			Str("reference", reference).
			Msg("verification amount mismatch")
		return
	}

	s.logger.Warn().Err(err).
		Str("provider", string(provider)).
		Str("reference", reference).
		Str("reason", reason).
		Msg("payment verification failed")
}

func (s *CheckoutService) observeGateway(provider gateway.Provider, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.GatewayRequestsTotal.WithLabelValues(string(provider), op, outcome).Inc()
	s.metrics.GatewayRequestDuration.WithLabelValues(string(provider), op).Observe(time.Since(start).Seconds())
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker open: %w", domainErrors.ErrGatewayUnavailable)
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domainErrors.ErrTransactionNotComplete):
		return "not_complete"
	case errors.Is(err, domainErrors.ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, domainErrors.ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, domainErrors.ErrGatewayUnavailable):
		return "unavailable"
	case errors.Is(err, domainErrors.ErrInvalidResponseFormat),
		errors.Is(err, domainErrors.ErrMissingResponseFields):
		return "protocol"
	case errors.Is(err, domainErrors.ErrInvalidCredentials):
		return "credentials"
	case errors.Is(err, domainErrors.ErrEmptyReference),
		errors.Is(err, domainErrors.ErrInvalidAmount),
		errors.Is(err, domainErrors.ErrAmountTooLarge):
		return "input"
	default:
		return "other"
	}
}
