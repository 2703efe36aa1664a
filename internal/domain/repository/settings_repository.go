package repository

import (
	"context"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
)

// SettingsRepository persists the single device settings row. The dispatcher
// re-reads settings at the start of every attempt, so edits apply to the next
// attempt without coordination.
type SettingsRepository interface {
	Get(ctx context.Context) (*entity.DeviceSettings, error)
	Update(ctx context.Context, settings *entity.DeviceSettings) error

	// SetDeviceIdentity stores the serial number the device reported and,
	// when non-empty, the device-side control unit PIN. These are the only two
	// fields the probe may write back.
	SetDeviceIdentity(ctx context.Context, serial, pin string) error
}
