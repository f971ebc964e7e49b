package controller

import (
	"net/http"

	"github.com/sajilopay/payments/internal/gateway"
	"github.com/sajilopay/payments/internal/service"
)

// PaymentController exposes the checkout and verification endpoints.
type PaymentController struct {
	checkout *service.CheckoutService
}

func NewPaymentController(checkout *service.CheckoutService) *PaymentController {
	return &PaymentController{checkout: checkout}
}

// EsewaCheckout builds the signed eSewa redirect form for the given
// amount and callback URLs.
func (c *PaymentController) EsewaCheckout(w http.ResponseWriter, r *http.Request) {
	var req EsewaCheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	checkout, err := c.checkout.BeginEsewaCheckout(r.Context(), service.EsewaCheckoutInput{
		Amount:     req.Amount,
		SuccessURL: req.SuccessURL,
		FailureURL: req.FailureURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EsewaCheckoutResponse{
		TransactionUUID: checkout.TransactionUUID,
		ActionURL:       checkout.Form.ActionURL,
		Fields:          checkout.Form.Fields,
	})
}

// KhaltiCheckout initiates a Khalti payment and returns the redirect
// URL and pidx.
func (c *PaymentController) KhaltiCheckout(w http.ResponseWriter, r *http.Request) {
	var req KhaltiCheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	initiation, err := c.checkout.BeginKhaltiCheckout(r.Context(), service.KhaltiCheckoutInput{
		Amount:     req.Amount,
		OrderID:    req.OrderID,
		OrderName:  req.OrderName,
		ReturnURL:  req.ReturnURL,
		WebsiteURL: req.WebsiteURL,
		Customer: gateway.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, KhaltiCheckoutResponse{
		Pidx:       initiation.Pidx,
		PaymentURL: initiation.PaymentURL,
		ExpiresAt:  initiation.ExpiresAt,
		ExpiresIn:  initiation.ExpiresIn,
	})
}

// VerifyPayment looks up the transaction on the gateway and confirms
// the paid amount.
func (c *PaymentController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	txn, err := c.checkout.ConfirmPayment(r.Context(), gateway.Provider(req.Provider), req.Reference, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyPaymentResponse{
		Provider:      string(txn.Provider),
		ReferenceID:   txn.ReferenceID,
		TransactionID: txn.TransactionID,
		Amount:        gateway.FormatPaisa(txn.AmountPaisa),
		AmountPaisa:   txn.AmountPaisa,
		Status:        txn.Status,
		FeePaisa:      txn.FeePaisa,
		Refunded:      txn.Refunded,
	})
}
