package dto

import (
	"encoding/json"
	"time"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
)

// ErrorResponse is the uniform error envelope of the API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueueEntryResponse is one fiscal queue entry as exposed to operators.
type QueueEntryResponse struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	Status      string          `json:"status"`
	RetryCount  int             `json:"retry_count"`
	Error       string          `json:"error,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// FromQueueEntry maps the entity.
func FromQueueEntry(e *entity.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		ID:          e.ID,
		InvoiceID:   e.InvoiceID,
		Status:      e.Status,
		RetryCount:  e.RetryCount,
		Error:       e.Error,
		Response:    e.Response,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		CompletedAt: e.CompletedAt,
	}
}

// FromQueueEntries maps a list.
func FromQueueEntries(entries []*entity.QueueEntry) []QueueEntryResponse {
	out := make([]QueueEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromQueueEntry(e))
	}
	return out
}

// DeviceSettingsRequest is the operator-editable settings payload.
type DeviceSettingsRequest struct {
	EnableDevice      bool   `json:"enable_device"`
	FiscalizeOnSubmit bool   `json:"fiscalize_on_submit"`
	DeviceIP          string `json:"device_ip"`
	Port              int    `json:"port"`
	ControlUnitPIN    string `json:"control_unit_pin"`
	BearerToken       string `json:"bearer_token"`
	DebugMode         bool   `json:"debug_mode"`
}

// DeviceSettingsResponse echoes settings with credentials redacted.
type DeviceSettingsResponse struct {
	EnableDevice      bool      `json:"enable_device"`
	FiscalizeOnSubmit bool      `json:"fiscalize_on_submit"`
	DeviceIP          string    `json:"device_ip"`
	Port              int       `json:"port"`
	ControlUnitSerial string    `json:"control_unit_serial,omitempty"`
	PINConfigured     bool      `json:"pin_configured"`
	TokenConfigured   bool      `json:"token_configured"`
	DebugMode         bool      `json:"debug_mode"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FromDeviceSettings maps the entity, hiding the PIN and token values.
func FromDeviceSettings(s *entity.DeviceSettings) DeviceSettingsResponse {
	return DeviceSettingsResponse{
		EnableDevice:      s.EnableDevice,
		FiscalizeOnSubmit: s.FiscalizeOnSubmit,
		DeviceIP:          s.DeviceIP,
		Port:              s.Port,
		ControlUnitSerial: s.ControlUnitSerial,
		PINConfigured:     s.ControlUnitPIN != "",
		TokenConfigured:   s.BearerToken != "",
		DebugMode:         s.DebugMode,
		UpdatedAt:         s.UpdatedAt,
	}
}
