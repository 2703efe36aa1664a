// Package tims implements the HTTP side of the control unit protocol: the
// signing client and the connectivity probe transport.
package tims

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	domtims "github.com/aqiq/tims-fiscal/internal/domain/tims"
)

const (
	// SignTimeout bounds one real sign exchange with the device.
	SignTimeout = 30 * time.Second
	// ProbeTimeout bounds the lower-stakes connectivity check.
	ProbeTimeout = 10 * time.Second

	// DefaultMaxAttempts is the client-internal immediate retry budget used
	// when a caller (the probe) runs the client standalone. The queue
	// dispatcher passes 1 and owns backoff itself.
	DefaultMaxAttempts = 3

	// defaultAuthToken is provisioned when the operator has not set a bearer
	// token. Named policy, not a header-construction side effect: the device
	// firmware ships with this fixed credential.
	defaultAuthToken = "Basic ZxZoaZMUQbUJDljA7kTExQ==2023"

	maxResponseBytes = 1 << 20
	errBodyPreview   = 200
)

// DeviceResponse is the decoded success body of a sign call. Raw carries the
// verbatim device JSON for the queue entry record.
type DeviceResponse struct {
	Raw             json.RawMessage `json:"-"`
	CUInvoiceNumber string          `json:"cu_invoice_number"`
	VerifyURL       string          `json:"verify_url"`
	CUSerialNumber  string          `json:"cu_serial_number"`
	InvoicePIN      string          `json:"invoice_pin"`
	Description     string          `json:"description"`
}

// Signer is the outbound port for one sign exchange with the control unit.
// The concrete implementation speaks HTTP; tests inject a fake.
type Signer interface {
	// Sign posts the payload to the device and classifies the outcome.
	// maxAttempts > 1 re-attempts immediately on failure and surfaces the
	// last error; backoff between queue-level retries is not this client's
	// concern.
	Sign(ctx context.Context, payload *domtims.Payload, settings *entity.DeviceSettings, maxAttempts int) (*DeviceResponse, error)
}

// HTTPSigner implements Signer against a real device.
type HTTPSigner struct {
	client *http.Client
	log    zerolog.Logger
}

var _ Signer = (*HTTPSigner)(nil)

// NewHTTPSigner builds the client. The http.Client carries no global timeout;
// every attempt gets a request-scoped context instead, so the probe and real
// signs can use different bounds.
func NewHTTPSigner(log zerolog.Logger) *HTTPSigner {
	return &HTTPSigner{
		client: &http.Client{},
		log:    log,
	}
}

// SignURL builds the device endpoint for the payload's wire variant.
func SignURL(settings *entity.DeviceSettings, mode domtims.Mode) string {
	return fmt.Sprintf("http://%s:%d/api/sign?%s", settings.DeviceIP, settings.Port, mode.EndpointVariant())
}

// Sign performs up to maxAttempts exchanges and returns the first success or
// the last classified error.
func (s *HTTPSigner) Sign(ctx context.Context, payload *domtims.Payload, settings *entity.DeviceSettings, maxAttempts int) (*DeviceResponse, error) {
	if !settings.Configured() {
		return nil, domtims.ConfigurationErr("device IP and port must be configured")
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domtims.ValidationErr("encode payload: %v", err)
	}
	url := SignURL(settings, payload.Mode)

	if settings.DebugMode {
		s.log.Debug().Str("url", url).RawJSON("payload", body).Msg("fiscal device request")
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := s.attempt(ctx, url, body, settings)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (s *HTTPSigner) attempt(ctx context.Context, url string, body []byte, settings *entity.DeviceSettings) (*DeviceResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domtims.TransportErr(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authToken(settings))

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domtims.TransportErr(ctx.Err(), "device did not respond in time")
		}
		return nil, domtims.TransportErr(err, "could not connect to fiscal device")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domtims.TransportErr(err, "read device response")
	}

	if settings.DebugMode {
		s.log.Debug().Int("status", resp.StatusCode).Bytes("body", raw).Msg("fiscal device response")
	}

	if resp.StatusCode != http.StatusOK {
		desc := extractDescription(raw)
		s.log.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Str("description", desc).
			Msg("fiscal device rejected request")
		return nil, domtims.DeviceErr("device returned status %d: %s", resp.StatusCode, desc)
	}

	var dr DeviceResponse
	if err := json.Unmarshal(raw, &dr); err != nil {
		return nil, domtims.TransportErr(err, "undecodable device response")
	}
	dr.Raw = raw

	// A 200 body without the signature reference is still an application-level
	// rejection, never a success.
	if dr.CUInvoiceNumber == "" && dr.CUSerialNumber == "" {
		return nil, domtims.DeviceErr("device response lacks signature reference: %s", extractDescription(raw))
	}
	return &dr, nil
}

// authToken resolves the Authorization header, provisioning the firmware
// default when the operator left the token empty.
func authToken(settings *entity.DeviceSettings) string {
	if settings.BearerToken != "" {
		return settings.BearerToken
	}
	return defaultAuthToken
}

// extractDescription pulls the human-readable description field from a device
// error body, falling back to the (capped) raw text.
func extractDescription(raw []byte) string {
	var parsed struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Description != "" {
		return parsed.Description
	}
	if len(raw) > errBodyPreview {
		raw = raw[:errBodyPreview]
	}
	return string(raw)
}
