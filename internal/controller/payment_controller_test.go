package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sajilopay/payments/internal/gateway"
	"github.com/sajilopay/payments/internal/infrastructure/config"
	"github.com/sajilopay/payments/internal/infrastructure/observability"
	"github.com/sajilopay/payments/internal/service"
	"github.com/sajilopay/payments/internal/testutil"
	"github.com/sajilopay/payments/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, esewaDoer, khaltiDoer gateway.Doer) http.Handler {
	t.Helper()

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	esewa := gateway.NewEsewaClient(gateway.EsewaConfig{
		ProductCode: "EPAYTEST",
		SecretKey:   "ctl-esewa-secret",
		TestMode:    true,
	}, gateway.WithHTTPClient(esewaDoer))
	khalti := gateway.NewKhaltiClient(gateway.KhaltiConfig{
		SecretKey: "ctl-khalti-secret",
		TestMode:  true,
	}, gateway.WithHTTPClient(khaltiDoer))

	checkout := service.NewCheckoutService(esewa, khalti, retry.Config{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}, metrics, zerolog.Nop())

	return NewRouter(RouterDeps{
		CheckoutService: checkout,
		Metrics:         metrics,
		CORSConfig:      config.CORSConfig{AllowedOrigins: []string{"*"}},
	})
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestEsewaCheckoutEndpoint(t *testing.T) {
	router := newTestRouter(t, &testutil.RecordingDoer{}, &testutil.RecordingDoer{})

	w := postJSON(t, router, "/api/v1/checkout/esewa", map[string]any{
		"amount":      1500,
		"success_url": "https://shop.example/s",
		"failure_url": "https://shop.example/f",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp EsewaCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TransactionUUID)
	assert.Equal(t, "https://rc-epay.esewa.com.np/api/epay/main/v2/form", resp.ActionURL)
	assert.Equal(t, "1500.00", resp.Fields["total_amount"])
	assert.NotEmpty(t, resp.Fields["signature"])
}

func TestEsewaCheckoutEndpoint_ValidationError(t *testing.T) {
	router := newTestRouter(t, &testutil.RecordingDoer{}, &testutil.RecordingDoer{})

	w := postJSON(t, router, "/api/v1/checkout/esewa", map[string]any{
		"amount":      0,
		"success_url": "https://shop.example/s",
		"failure_url": "https://shop.example/f",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
}

func TestKhaltiCheckoutEndpoint(t *testing.T) {
	khaltiDoer := &testutil.RecordingDoer{
		Response: testutil.JSONResponse(200, `{"pidx": "abc123", "payment_url": "https://pay.example/abc123"}`),
	}
	router := newTestRouter(t, &testutil.RecordingDoer{}, khaltiDoer)

	w := postJSON(t, router, "/api/v1/checkout/khalti", map[string]any{
		"amount":      250,
		"order_id":    "order-1",
		"order_name":  "Bridal package",
		"return_url":  "https://shop.example/return",
		"website_url": "https://shop.example",
		"customer":    map[string]string{"name": "Asha"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp KhaltiCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp.Pidx)
	assert.Equal(t, "https://pay.example/abc123", resp.PaymentURL)
}

func TestVerifyPaymentEndpoint_Success(t *testing.T) {
	esewaDoer := &testutil.RecordingDoer{
		Response: testutil.JSONResponse(200, `{"status": "COMPLETE", "ref_id": "R1", "total_amount": "1500.00", "transaction_uuid": "U1"}`),
	}
	router := newTestRouter(t, esewaDoer, &testutil.RecordingDoer{})

	w := postJSON(t, router, "/api/v1/payments/verify", map[string]any{
		"provider":  "esewa",
		"reference": "U1",
		"amount":    1500,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp VerifyPaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "esewa", resp.Provider)
	assert.Equal(t, "R1", resp.ReferenceID)
	assert.Equal(t, "1500.00", resp.Amount)
	assert.Equal(t, int64(150000), resp.AmountPaisa)
}

func TestVerifyPaymentEndpoint_AmountMismatch(t *testing.T) {
	khaltiDoer := &testutil.RecordingDoer{
		Response: testutil.JSONResponse(200, `{"pidx": "p", "total_amount": 99999, "status": "Completed"}`),
	}
	router := newTestRouter(t, &testutil.RecordingDoer{}, khaltiDoer)

	w := postJSON(t, router, "/api/v1/payments/verify", map[string]any{
		"provider":  "khalti",
		"reference": "p",
		"amount":    1000,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "amount_mismatch", resp.Code)
	assert.Contains(t, resp.Error, "amount mismatch")
}

func TestVerifyPaymentEndpoint_IncompleteStatus(t *testing.T) {
	khaltiDoer := &testutil.RecordingDoer{
		Response: testutil.JSONResponse(200, `{"pidx": "p", "total_amount": 100000, "status": "Pending"}`),
	}
	router := newTestRouter(t, &testutil.RecordingDoer{}, khaltiDoer)

	w := postJSON(t, router, "/api/v1/payments/verify", map[string]any{
		"provider":  "khalti",
		"reference": "p",
		"amount":    1000,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "payment_incomplete", resp.Code)
	assert.Contains(t, resp.Error, "Pending")
}

func TestVerifyPaymentEndpoint_UnknownProviderRejected(t *testing.T) {
	router := newTestRouter(t, &testutil.RecordingDoer{}, &testutil.RecordingDoer{})

	w := postJSON(t, router, "/api/v1/payments/verify", map[string]any{
		"provider":  "paypal",
		"reference": "x",
		"amount":    10,
	})
	// Fails DTO validation before reaching the service.
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyPaymentEndpoint_GatewayOutage(t *testing.T) {
	khaltiDoer := &testutil.RecordingDoer{
		Response: testutil.HTMLResponse(200, "<html>down for maintenance</html>"),
	}
	router := newTestRouter(t, &testutil.RecordingDoer{}, khaltiDoer)

	w := postJSON(t, router, "/api/v1/payments/verify", map[string]any{
		"provider":  "khalti",
		"reference": "p",
		"amount":    10,
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gateway_protocol_error", resp.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, &testutil.RecordingDoer{}, &testutil.RecordingDoer{})

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
