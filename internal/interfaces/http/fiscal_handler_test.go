package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqiq/tims-fiscal/internal/application/fiscal"
	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
	"github.com/aqiq/tims-fiscal/pkg/logger"
)

// Stubs embed the interface and override only what a route touches; hitting
// anything else panics the test, which is the point.

type stubQueueRepo struct {
	repository.QueueRepository
	entries  []*entity.QueueEntry
	inserted []*entity.QueueEntry
}

func (s *stubQueueRepo) InsertIfAbsent(ctx context.Context, entry *entity.QueueEntry) error {
	entry.ID = "fq-001"
	s.inserted = append(s.inserted, entry)
	return nil
}

func (s *stubQueueRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.QueueEntry, error) {
	var out []*entity.QueueEntry
	for _, e := range s.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubQueueRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.QueueEntry, error) {
	var out []*entity.QueueEntry
	for _, e := range s.entries {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubInvoiceRepo struct {
	repository.InvoiceRepository
	invoices map[string]*entity.Invoice
}

func (s *stubInvoiceRepo) GetSnapshot(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	return s.invoices[invoiceID], nil
}

type stubSettingsRepo struct {
	repository.SettingsRepository
	settings entity.DeviceSettings
	updated  *entity.DeviceSettings
}

func (s *stubSettingsRepo) Get(ctx context.Context) (*entity.DeviceSettings, error) {
	cp := s.settings
	return &cp, nil
}

func (s *stubSettingsRepo) Update(ctx context.Context, settings *entity.DeviceSettings) error {
	s.updated = settings
	return nil
}

func newTestApp(queue *stubQueueRepo, invoices *stubInvoiceRepo, settings *stubSettingsRepo) *fiber.App {
	dispatcher := fiscal.NewDispatcher(queue, invoices, settings, nil, nil, fiscal.Config{}, logger.Nop())
	app := fiber.New()
	Router(app, RouterDeps{
		Dispatcher:   dispatcher,
		Probe:        fiscal.NewProbe(settings, nil, logger.Nop()),
		QueueRepo:    queue,
		SettingsRepo: settings,
	})
	return app
}

func disabledDevice() *stubSettingsRepo {
	return &stubSettingsRepo{settings: entity.DeviceSettings{EnableDevice: false}}
}

func TestEnqueueEndpoint_DisabledDeviceIsAcceptedSilently(t *testing.T) {
	queue := &stubQueueRepo{}
	app := newTestApp(queue, &stubInvoiceRepo{}, disabledDevice())

	resp, err := app.Test(httptest.NewRequest("POST", "/api/fiscal/queue/INV-001", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Empty(t, queue.inserted, "a disabled device skips queueing without surfacing an error")
}

func TestFiscalizeNowEndpoint_UnknownInvoice(t *testing.T) {
	app := newTestApp(&stubQueueRepo{}, &stubInvoiceRepo{}, disabledDevice())

	resp, err := app.Test(httptest.NewRequest("POST", "/api/fiscal/invoices/INV-NOPE/fiscalize", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestFiscalizeNowEndpoint_DeviceNotReady(t *testing.T) {
	invoices := &stubInvoiceRepo{invoices: map[string]*entity.Invoice{
		"INV-001": {ID: "INV-001"},
	}}
	app := newTestApp(&stubQueueRepo{}, invoices, disabledDevice())

	resp, err := app.Test(httptest.NewRequest("POST", "/api/fiscal/invoices/INV-001/fiscalize", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "DEVICE_NOT_READY", body["code"])
}

func TestListQueueEndpoint(t *testing.T) {
	now := time.Now()
	queue := &stubQueueRepo{entries: []*entity.QueueEntry{
		{ID: "fq-1", InvoiceID: "INV-1", Status: entity.QueueStatusFailed, RetryCount: 2, Error: "timeout", CreatedAt: now, UpdatedAt: now},
		{ID: "fq-2", InvoiceID: "INV-2", Status: entity.QueueStatusCompleted, CreatedAt: now, UpdatedAt: now},
	}}
	app := newTestApp(queue, &stubInvoiceRepo{}, disabledDevice())

	// Default status is Failed.
	resp, err := app.Test(httptest.NewRequest("GET", "/api/fiscal/queue", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "fq-1")
	assert.NotContains(t, string(raw), "fq-2")

	resp, err = app.Test(httptest.NewRequest("GET", "/api/fiscal/queue?status=Bogus", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSettingsEndpoint_RedactsCredentials(t *testing.T) {
	settings := &stubSettingsRepo{settings: entity.DeviceSettings{
		EnableDevice:   true,
		DeviceIP:       "192.168.0.50",
		Port:           8084,
		ControlUnitPIN: "P051201909L",
		BearerToken:    "Basic secret",
	}}
	app := newTestApp(&stubQueueRepo{}, &stubInvoiceRepo{}, settings)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/fiscal/device/settings", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(raw), "P051201909L", "the PIN never leaves the server")
	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, string(raw), `"pin_configured":true`)
	assert.Contains(t, string(raw), `"token_configured":true`)
}

func TestSettingsEndpoint_UpdateValidation(t *testing.T) {
	settings := disabledDevice()
	app := newTestApp(&stubQueueRepo{}, &stubInvoiceRepo{}, settings)

	req := httptest.NewRequest("PUT", "/api/fiscal/device/settings",
		strings.NewReader(`{"enable_device":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "enabling requires an address")
	assert.Nil(t, settings.updated)

	req = httptest.NewRequest("PUT", "/api/fiscal/device/settings",
		strings.NewReader(`{"enable_device":true,"device_ip":"192.168.0.50","port":8084}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, settings.updated)
	assert.Equal(t, "192.168.0.50", settings.updated.DeviceIP)
}

func TestDeviceStatusEndpoint_NotConfigured(t *testing.T) {
	app := newTestApp(&stubQueueRepo{}, &stubInvoiceRepo{}, disabledDevice())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/fiscal/device/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result fiscal.ProbeResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, fiscal.ProbeNotConfigured, result.Status)
}
