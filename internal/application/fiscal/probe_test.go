package fiscal

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	domtims "github.com/aqiq/tims-fiscal/internal/domain/tims"
	infratims "github.com/aqiq/tims-fiscal/internal/infrastructure/tims"
	"github.com/aqiq/tims-fiscal/pkg/logger"
)

func newProbeEnv(settings entity.DeviceSettings, results ...signResult) (*Probe, *fakeSettingsRepo, *fakeSigner) {
	settingsRepo := &fakeSettingsRepo{settings: settings}
	signer := &fakeSigner{results: results}
	return NewProbe(settingsRepo, signer, logger.Nop()), settingsRepo, signer
}

func configuredSettings() entity.DeviceSettings {
	return entity.DeviceSettings{
		EnableDevice:   true,
		DeviceIP:       "192.168.0.50",
		Port:           8084,
		ControlUnitPIN: "P051201909L",
	}
}

func TestProbe_NotConfigured(t *testing.T) {
	probe, _, signer := newProbeEnv(entity.DeviceSettings{EnableDevice: true})

	result, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProbeNotConfigured, result.Status)
	assert.Zero(t, signer.calls(), "no network traffic without an address")
}

func TestProbe_Connected_PersistsIdentity(t *testing.T) {
	ok := deviceOK()
	ok.resp.InvoicePIN = "P051999999X"
	probe, settingsRepo, signer := newProbeEnv(configuredSettings(), ok)

	result, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProbeConnected, result.Status)
	assert.Equal(t, "KRA001", result.SerialNumber)

	stored, _ := settingsRepo.Get(context.Background())
	assert.Equal(t, "KRA001", stored.ControlUnitSerial)
	assert.Equal(t, "P051999999X", stored.ControlUnitPIN, "the device-reported PIN wins")

	require.Equal(t, 1, signer.calls())
	payload := signer.payloads[0]
	assert.Equal(t, domtims.ModeInclusive, payload.Mode)
	assert.True(t, strings.HasPrefix(payload.InvoiceNumber, "TEST_"), "probe invoices are synthetic")
}

func TestProbe_Connected_KeepsPINWhenDeviceOmitsIt(t *testing.T) {
	probe, settingsRepo, _ := newProbeEnv(configuredSettings(), deviceOK())

	result, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProbeConnected, result.Status)

	stored, _ := settingsRepo.Get(context.Background())
	assert.Equal(t, "P051201909L", stored.ControlUnitPIN)
}

func TestProbe_Disconnected(t *testing.T) {
	probe, _, _ := newProbeEnv(configuredSettings(), deviceDown())

	result, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProbeDisconnected, result.Status)
	assert.Contains(t, result.Message, "connection refused")
}

func TestProbe_ConfigurationErrorMapsToNotConfigured(t *testing.T) {
	probe, _, _ := newProbeEnv(configuredSettings(),
		signResult{err: domtims.ConfigurationErr("device bearer token rejected")})

	result, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProbeNotConfigured, result.Status)
}

func TestProbe_MissingSerialIsDisconnected(t *testing.T) {
	probe, settingsRepo, _ := newProbeEnv(configuredSettings(),
		signResult{resp: &infratims.DeviceResponse{CUInvoiceNumber: "CU123"}})

	result, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProbeDisconnected, result.Status)

	stored, _ := settingsRepo.Get(context.Background())
	assert.Empty(t, stored.ControlUnitSerial, "nothing is persisted without a serial")
}

func TestProbePayload_Shape(t *testing.T) {
	p := domtims.ProbePayload("TEST_120000", "15_03_2024")
	assert.Equal(t, domtims.ModeInclusive, p.Mode)
	assert.Equal(t, "1.00", p.GrandTotal)
	assert.Equal(t, "0.86", p.NetSubtotal)
	assert.Equal(t, "0.14", p.TaxTotal)
	assert.Equal(t, "KSH", p.SelCurrency)
	assert.NotEmpty(t, p.ItemsList)
	assert.Empty(t, p.ItemsArray)
}
