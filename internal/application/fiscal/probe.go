package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqiq/tims-fiscal/internal/domain/repository"
	domtims "github.com/aqiq/tims-fiscal/internal/domain/tims"
	infratims "github.com/aqiq/tims-fiscal/internal/infrastructure/tims"
	"github.com/aqiq/tims-fiscal/pkg/logger"
)

// Probe connection states shown to the operator.
const (
	ProbeConnected     = "Connected"
	ProbeDisconnected  = "Disconnected"
	ProbeNotConfigured = "Not Configured"
)

// ProbeResult is the tri-state outcome of a connectivity check.
type ProbeResult struct {
	Status       string `json:"status"`
	SerialNumber string `json:"serial_number,omitempty"`
	Message      string `json:"message"`
}

// Probe checks device reachability with a synthetic sign request. It never
// touches the queue or any invoice; its only write is the device identity
// (serial, device-side PIN) back into settings on success.
type Probe struct {
	settingsRepo repository.SettingsRepository
	signer       infratims.Signer
	log          *logger.Logger
}

// NewProbe builds the probe.
func NewProbe(settingsRepo repository.SettingsRepository, signer infratims.Signer, log *logger.Logger) *Probe {
	return &Probe{settingsRepo: settingsRepo, signer: signer, log: log}
}

// Check runs one connectivity check against the configured device.
func (p *Probe) Check(ctx context.Context) (*ProbeResult, error) {
	settings, err := p.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Configured() {
		return &ProbeResult{
			Status:  ProbeNotConfigured,
			Message: "device IP and port not configured",
		}, nil
	}

	now := time.Now()
	payload := domtims.ProbePayload(
		fmt.Sprintf("TEST_%s", now.Format("150405")),
		now.Format("02_01_2006"),
	)

	probeCtx, cancel := context.WithTimeout(ctx, infratims.ProbeTimeout)
	defer cancel()
	resp, err := p.signer.Sign(probeCtx, payload, settings, infratims.DefaultMaxAttempts)
	if err != nil {
		var fe *domtims.FiscalError
		if errors.As(err, &fe) && fe.Kind == domtims.KindConfiguration {
			return &ProbeResult{Status: ProbeNotConfigured, Message: fe.Msg}, nil
		}
		return &ProbeResult{Status: ProbeDisconnected, Message: err.Error()}, nil
	}
	if resp.CUSerialNumber == "" {
		return &ProbeResult{
			Status:  ProbeDisconnected,
			Message: "invalid response from device: no serial number reported",
		}, nil
	}

	// Persist what the device told us about itself; failure here degrades the
	// probe report, not the connection status.
	if err := p.settingsRepo.SetDeviceIdentity(ctx, resp.CUSerialNumber, resp.InvoicePIN); err != nil {
		p.log.Error().Err(err).Msg("probe: persisting device identity failed")
	}

	return &ProbeResult{
		Status:       ProbeConnected,
		SerialNumber: resp.CUSerialNumber,
		Message:      fmt.Sprintf("connected to device %s", resp.CUSerialNumber),
	}, nil
}
