package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
)

var _ repository.SettingsRepository = (*SettingsRepo)(nil)

// SettingsRepo persists the single fiscal_device_settings row (usable with
// pool or tx). Get never fails on a missing row: a fresh database reads as
// "device disabled, nothing configured".
type SettingsRepo struct {
	q Querier
}

// NewSettingsRepository builds the adapter. Pass pool or tx (Querier).
func NewSettingsRepository(q Querier) *SettingsRepo {
	return &SettingsRepo{q: q}
}

// The table is keyed on a constant to force a single row.
const settingsRowID = 1

// Get loads the settings row, or zero-value settings when none exists yet.
func (r *SettingsRepo) Get(ctx context.Context) (*entity.DeviceSettings, error) {
	query := `
		SELECT enable_device, fiscalize_on_submit, COALESCE(device_ip, ''), COALESCE(port, 0),
		       COALESCE(control_unit_pin, ''), COALESCE(control_unit_serial, ''),
		       COALESCE(bearer_token, ''), debug_mode, updated_at
		FROM fiscal_device_settings WHERE id = $1`
	var s entity.DeviceSettings
	err := r.q.QueryRow(ctx, query, settingsRowID).Scan(
		&s.EnableDevice, &s.FiscalizeOnSubmit, &s.DeviceIP, &s.Port,
		&s.ControlUnitPIN, &s.ControlUnitSerial, &s.BearerToken, &s.DebugMode, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.DeviceSettings{}, nil
		}
		return nil, fmt.Errorf("get device settings: %w", err)
	}
	return &s, nil
}

// Update upserts the operator-editable fields.
func (r *SettingsRepo) Update(ctx context.Context, s *entity.DeviceSettings) error {
	query := `
		INSERT INTO fiscal_device_settings
			(id, enable_device, fiscalize_on_submit, device_ip, port,
			 control_unit_pin, bearer_token, debug_mode, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			enable_device       = EXCLUDED.enable_device,
			fiscalize_on_submit = EXCLUDED.fiscalize_on_submit,
			device_ip           = EXCLUDED.device_ip,
			port                = EXCLUDED.port,
			control_unit_pin    = EXCLUDED.control_unit_pin,
			bearer_token        = EXCLUDED.bearer_token,
			debug_mode          = EXCLUDED.debug_mode,
			updated_at          = now()`
	_, err := r.q.Exec(ctx, query, settingsRowID,
		s.EnableDevice, s.FiscalizeOnSubmit, nullIfEmpty(s.DeviceIP), s.Port,
		nullIfEmpty(s.ControlUnitPIN), nullIfEmpty(s.BearerToken), s.DebugMode,
	)
	if err != nil {
		return fmt.Errorf("update device settings: %w", err)
	}
	return nil
}

// SetDeviceIdentity stores what the device reported about itself during a
// successful probe: its serial and, when present, its control unit PIN.
func (r *SettingsRepo) SetDeviceIdentity(ctx context.Context, serial, pin string) error {
	query := `
		UPDATE fiscal_device_settings
		SET control_unit_serial = $2,
		    control_unit_pin    = COALESCE($3, control_unit_pin),
		    updated_at          = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, settingsRowID, serial, nullIfEmpty(pin)); err != nil {
		return fmt.Errorf("set device identity: %w", err)
	}
	return nil
}
