package controller

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, string for
// IDs, validation tags). Controllers convert these to service layer
// inputs before calling business logic.

// EsewaCheckoutRequest holds the input for starting an eSewa checkout.
type EsewaCheckoutRequest struct {
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	SuccessURL string  `json:"success_url" validate:"required,url"`
	FailureURL string  `json:"failure_url" validate:"required,url"`
}

// KhaltiCheckoutRequest holds the input for starting a Khalti checkout.
type KhaltiCheckoutRequest struct {
	Amount     float64      `json:"amount" validate:"required,gt=0"`
	OrderID    string       `json:"order_id" validate:"required"`
	OrderName  string       `json:"order_name" validate:"required"`
	ReturnURL  string       `json:"return_url" validate:"required,url"`
	WebsiteURL string       `json:"website_url" validate:"required,url"`
	Customer   CustomerInfo `json:"customer" validate:"required"`
}

// CustomerInfo identifies the paying customer.
type CustomerInfo struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty"`
}

// VerifyPaymentRequest holds the input for verifying a completed
// payment. Reference is the eSewa transaction UUID or the Khalti pidx.
type VerifyPaymentRequest struct {
	Provider  string  `json:"provider" validate:"required,oneof=esewa khalti"`
	Reference string  `json:"reference" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

// --- Response DTOs ---

// EsewaCheckoutResponse carries the signed form the browser must POST
// to the eSewa hosted payment page.
type EsewaCheckoutResponse struct {
	TransactionUUID string            `json:"transaction_uuid"`
	ActionURL       string            `json:"action_url"`
	Fields          map[string]string `json:"fields"`
}

// KhaltiCheckoutResponse carries the redirect URL and the pidx the
// caller must keep for later verification.
type KhaltiCheckoutResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	ExpiresIn  int    `json:"expires_in,omitempty"`
}

// VerifyPaymentResponse is the normalized verified transaction.
type VerifyPaymentResponse struct {
	Provider      string `json:"provider"`
	ReferenceID   string `json:"reference_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        string `json:"amount"`
	AmountPaisa   int64  `json:"amount_paisa"`
	Status        string `json:"status"`
	FeePaisa      *int64 `json:"fee_paisa,omitempty"`
	Refunded      *bool  `json:"refunded,omitempty"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
