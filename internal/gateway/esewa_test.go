package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	domainErrors "github.com/sajilopay/payments/internal/domain/errors"
	"github.com/sajilopay/payments/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProductCode = "EPAYTEST"
	testEsewaSecret = "8gBm/:&EnhH.1/q"
)

func testEsewaClient(doer Doer, opts ...ClientOption) *EsewaClient {
	cfg := EsewaConfig{
		ProductCode: testProductCode,
		SecretKey:   testEsewaSecret,
		TestMode:    true,
	}
	return NewEsewaClient(cfg, append([]ClientOption{WithHTTPClient(doer)}, opts...)...)
}

func TestSign_Deterministic(t *testing.T) {
	msg := SignatureMessage("1000.00", "u-1", testProductCode)

	first := Sign(testEsewaSecret, msg)
	second := Sign(testEsewaSecret, msg)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestSign_SensitiveToMessageChanges(t *testing.T) {
	base := Sign(testEsewaSecret, SignatureMessage("1000.00", "u-1", testProductCode))

	// One character difference.
	assert.NotEqual(t, base, Sign(testEsewaSecret, SignatureMessage("1000.01", "u-1", testProductCode)))
	// Field reordering changes the message, therefore the signature.
	reordered := "transaction_uuid=u-1,total_amount=1000.00,product_code=" + testProductCode
	assert.NotEqual(t, base, Sign(testEsewaSecret, reordered))
	// Different key.
	assert.NotEqual(t, base, Sign("other-key", SignatureMessage("1000.00", "u-1", testProductCode)))
}

func TestBuildRedirectForm(t *testing.T) {
	client := testEsewaClient(&testutil.RecordingDoer{})

	form, err := client.BuildRedirectForm(RedirectFormRequest{
		Amount:          1000,
		TransactionUUID: "u-123",
		SuccessURL:      "https://shop.example/payments/success",
		FailureURL:      "https://shop.example/payments/failure",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://rc-epay.esewa.com.np/api/epay/main/v2/form", form.ActionURL)
	assert.Equal(t, "1000.00", form.Fields["amount"])
	assert.Equal(t, "1000.00", form.Fields["total_amount"])
	assert.Equal(t, "0", form.Fields["tax_amount"])
	assert.Equal(t, "0", form.Fields["product_service_charge"])
	assert.Equal(t, "0", form.Fields["product_delivery_charge"])
	assert.Equal(t, "u-123", form.Fields["transaction_uuid"])
	assert.Equal(t, testProductCode, form.Fields["product_code"])
	assert.Equal(t, "https://shop.example/payments/success", form.Fields["success_url"])
	assert.Equal(t, "https://shop.example/payments/failure", form.Fields["failure_url"])
	assert.Equal(t, "total_amount,transaction_uuid,product_code", form.Fields["signed_field_names"])

	expectedSig := Sign(testEsewaSecret, SignatureMessage("1000.00", "u-123", testProductCode))
	assert.Equal(t, expectedSig, form.Fields["signature"])
}

func TestBuildRedirectForm_ProductionActionURL(t *testing.T) {
	client := NewEsewaClient(EsewaConfig{ProductCode: "PROD", SecretKey: "k", TestMode: false})

	form, err := client.BuildRedirectForm(RedirectFormRequest{
		Amount:          10,
		TransactionUUID: "u-1",
		SuccessURL:      "https://shop.example/s",
		FailureURL:      "https://shop.example/f",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://epay.esewa.com.np/api/epay/main/v2/form", form.ActionURL)
}

func TestBuildRedirectForm_InvalidInput(t *testing.T) {
	client := testEsewaClient(&testutil.RecordingDoer{})

	_, err := client.BuildRedirectForm(RedirectFormRequest{Amount: 0, TransactionUUID: "u"})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)

	_, err = client.BuildRedirectForm(RedirectFormRequest{Amount: 10, TransactionUUID: "   "})
	assert.ErrorIs(t, err, domainErrors.ErrEmptyReference)
}

func TestEsewaVerify_Success(t *testing.T) {
	doer := &testutil.RecordingDoer{
		Response: testutil.JSONResponse(200, `{
			"status": "COMPLETE",
			"ref_id": "R1",
			"total_amount": "1500.00",
			"transaction_uuid": "U1",
			"product_code": "EPAYTEST"
		}`),
	}
	client := testEsewaClient(doer)

	txn, err := client.Verify(context.Background(), "U1", 1500.00)
	require.NoError(t, err)

	assert.Equal(t, ProviderEsewa, txn.Provider)
	assert.Equal(t, "R1", txn.ReferenceID)
	assert.Equal(t, "U1", txn.TransactionID)
	assert.Equal(t, int64(150000), txn.AmountPaisa)
	assert.Equal(t, "COMPLETE", txn.Status)

	// Request shape owed to the gateway.
	reqs := doer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://rc.esewa.com.np/api/epay/transaction/status/", reqs[0].URL)
	assert.NotEmpty(t, reqs[0].Header.Get("Authorization"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Equal(t, "EPAYTEST", body["product_code"])
	assert.Equal(t, "1500.00", body["total_amount"])
	assert.Equal(t, "U1", body["transaction_uuid"])
}

func TestEsewaVerify_EmptyReference(t *testing.T) {
	doer := &testutil.RecordingDoer{}
	client := testEsewaClient(doer)

	_, err := client.Verify(context.Background(), "   ", 100)
	assert.ErrorIs(t, err, domainErrors.ErrEmptyReference)
	assert.Zero(t, doer.Calls(), "no network call on invalid reference")
}

func TestEsewaVerify_NonLatin1Credentials(t *testing.T) {
	doer := &testutil.RecordingDoer{}
	client := NewEsewaClient(EsewaConfig{
		ProductCode: "EPAYTEST",
		SecretKey:   "secret-€-key", // euro sign is outside Latin-1
		TestMode:    true,
	}, WithHTTPClient(doer))

	_, err := client.Verify(context.Background(), "U1", 100)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)
	assert.NotContains(t, err.Error(), "secret-")
	assert.Zero(t, doer.Calls())
}

func TestEsewaVerify_NonComplete(t *testing.T) {
	for _, status := range []string{"PENDING", "CANCELED", "FULL_REFUND", "AMBIGUOUS"} {
		doer := &testutil.RecordingDoer{
			Response: testutil.JSONResponse(200, `{"status": "`+status+`", "total_amount": "100.00"}`),
		}
		client := testEsewaClient(doer)

		_, err := client.Verify(context.Background(), "U1", 100)
		require.ErrorIs(t, err, domainErrors.ErrTransactionNotComplete)
		assert.Contains(t, err.Error(), status, "literal status must be surfaced")
	}
}

func TestEsewaVerify_AmountMismatch(t *testing.T) {
	// Off by exactly one paisa.
	doer := &testutil.RecordingDoer{
		Response: testutil.JSONResponse(200, `{"status": "COMPLETE", "ref_id": "R1", "total_amount": "999.99"}`),
	}
	client := testEsewaClient(doer)

	_, err := client.Verify(context.Background(), "U1", 1000.00)
	require.ErrorIs(t, err, domainErrors.ErrAmountMismatch)
	assert.Contains(t, err.Error(), "1000.00")
	assert.Contains(t, err.Error(), "999.99")
}

func TestEsewaVerify_ContentTypeGuard(t *testing.T) {
	doer := &testutil.RecordingDoer{
		Response: testutil.HTMLResponse(200, "<html>maintenance</html>"),
	}
	client := testEsewaClient(doer)

	_, err := client.Verify(context.Background(), "U1", 100)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidResponseFormat)
}

func TestEsewaVerify_HTTPError(t *testing.T) {
	doer := &testutil.RecordingDoer{
		Response: testutil.JSONResponse(500, `{"internal": "upstream stack trace"}`),
	}
	client := testEsewaClient(doer)

	_, err := client.Verify(context.Background(), "U1", 100)
	require.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)
	assert.Contains(t, err.Error(), "500")
	assert.NotContains(t, err.Error(), "stack trace", "upstream bodies are never echoed")
}

func TestEsewaVerify_Timeout(t *testing.T) {
	doer := &testutil.HangingDoer{}
	client := testEsewaClient(doer, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := client.Verify(context.Background(), "U1", 100)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEsewaVerify_SecretNeverLeaked(t *testing.T) {
	responses := []*testutil.RecordingDoer{
		{Response: testutil.JSONResponse(200, `{"status": "PENDING"}`)},
		{Response: testutil.JSONResponse(200, `{"status": "COMPLETE", "total_amount": "1.00"}`)},
		{Response: testutil.JSONResponse(503, ``)},
		{Response: testutil.HTMLResponse(200, "oops")},
	}

	for _, doer := range responses {
		client := testEsewaClient(doer)
		_, err := client.Verify(context.Background(), "U1", 100)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), testEsewaSecret)
	}
}
