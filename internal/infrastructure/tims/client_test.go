package tims_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	domtims "github.com/aqiq/tims-fiscal/internal/domain/tims"
	"github.com/aqiq/tims-fiscal/internal/infrastructure/tims"
)

// settingsFor points device settings at the test server.
func settingsFor(t *testing.T, srv *httptest.Server) *entity.DeviceSettings {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return &entity.DeviceSettings{
		EnableDevice:   true,
		DeviceIP:       host,
		Port:           port,
		ControlUnitPIN: "P051201909L",
	}
}

func signedPayload() *domtims.Payload {
	return &domtims.Payload{
		Mode:          domtims.ModeInclusive,
		InvoiceNumber: "INV-001",
		InvoicePIN:    "P051201909L",
		GrandTotal:    "116.00",
		NetSubtotal:   "100.00",
		TaxTotal:      "16.00",
		SelCurrency:   "KSH",
		ItemsArray:    []domtims.PayloadItem{{Name: "Widget", BrutPrice: "100.00", Quantity: "1.00"}},
	}
}

func TestSign_Success(t *testing.T) {
	var gotQuery, gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"cu_invoice_number":"CU123","verify_url":"https://verify/CU123","cu_serial_number":"KRA001"}`))
	}))
	defer srv.Close()

	signer := tims.NewHTTPSigner(zerolog.Nop())
	resp, err := signer.Sign(context.Background(), signedPayload(), settingsFor(t, srv), 1)
	require.NoError(t, err)

	assert.Equal(t, "CU123", resp.CUInvoiceNumber)
	assert.Equal(t, "https://verify/CU123", resp.VerifyURL)
	assert.Equal(t, "KRA001", resp.CUSerialNumber)
	assert.Contains(t, string(resp.Raw), "CU123", "raw body is preserved verbatim")

	assert.Equal(t, "invoice+1", gotQuery, "inclusive mode addresses the invoice+1 variant")
	assert.Equal(t, "application/json", gotContentType)
	assert.NotEmpty(t, gotAuth, "the default token is provisioned when none is configured")
}

func TestSign_ExclusiveVariant(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"cu_invoice_number":"CU124","cu_serial_number":"KRA001"}`))
	}))
	defer srv.Close()

	p := signedPayload()
	p.Mode = domtims.ModeExclusive

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), p, settingsFor(t, srv), 1)
	require.NoError(t, err)
	assert.Equal(t, "invoice+2", gotQuery)
}

func TestSign_CustomBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"cu_invoice_number":"CU125","cu_serial_number":"KRA001"}`))
	}))
	defer srv.Close()

	settings := settingsFor(t, srv)
	settings.BearerToken = "Basic custom-token"

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), settings, 1)
	require.NoError(t, err)
	assert.Equal(t, "Basic custom-token", gotAuth)
}

func TestSign_DeviceRejection_DescriptionExtracted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"description":"invalid PIN format"}`))
	}))
	defer srv.Close()

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), settingsFor(t, srv), 1)
	require.Error(t, err)
	assert.Equal(t, domtims.KindDeviceRejection, domtims.KindOf(err))
	assert.Contains(t, err.Error(), "invalid PIN format")
}

func TestSign_DeviceRejection_RawTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("device on fire"))
	}))
	defer srv.Close()

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), settingsFor(t, srv), 1)
	require.Error(t, err)
	assert.Equal(t, domtims.KindDeviceRejection, domtims.KindOf(err))
	assert.Contains(t, err.Error(), "device on fire")
}

func TestSign_SuccessStatusWithoutSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"description":"duplicate invoice number"}`))
	}))
	defer srv.Close()

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), settingsFor(t, srv), 1)
	require.Error(t, err, "a 200 body without a signature reference is a rejection, not a success")
	assert.Equal(t, domtims.KindDeviceRejection, domtims.KindOf(err))
	assert.Contains(t, err.Error(), "duplicate invoice number")
}

func TestSign_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), settingsFor(t, srv), 1)
	require.Error(t, err)
	assert.Equal(t, domtims.KindTransport, domtims.KindOf(err))
}

func TestSign_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), settingsFor(t, srv), 1)
	require.Error(t, err)
	assert.Equal(t, domtims.KindTransport, domtims.KindOf(err))
}

func TestSign_RetriesUpToBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), settingsFor(t, srv), 3)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load(), "the standalone client re-attempts immediately up to the budget")
}

func TestSign_NotConfigured(t *testing.T) {
	signer := tims.NewHTTPSigner(zerolog.Nop())
	_, err := signer.Sign(context.Background(), signedPayload(), &entity.DeviceSettings{}, 1)
	require.Error(t, err)
	assert.Equal(t, domtims.KindConfiguration, domtims.KindOf(err))
}
