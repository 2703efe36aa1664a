package entity

import "time"

// DeviceSettings is the operator-managed configuration of the TIMS control
// unit. There is a single row; every fiscalization attempt re-reads it, so
// changes take effect on the next attempt without a restart.
type DeviceSettings struct {
	EnableDevice      bool
	FiscalizeOnSubmit bool
	DeviceIP          string
	Port              int
	ControlUnitPIN    string // mandatory for signing; its absence is a configuration error
	ControlUnitSerial string // reported by the device, persisted by the connectivity probe
	BearerToken       string // Authorization header value; a default is provisioned when empty
	DebugMode         bool   // log request/response bodies and include raw device output in errors
	UpdatedAt         time.Time
}

// Configured reports whether the device address is usable at all.
func (s *DeviceSettings) Configured() bool {
	return s.DeviceIP != "" && s.Port != 0
}
