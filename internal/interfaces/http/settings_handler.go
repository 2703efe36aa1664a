package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aqiq/tims-fiscal/internal/application/dto"
	"github.com/aqiq/tims-fiscal/internal/application/fiscal"
	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
)

// SettingsHandler serves the device settings and connectivity endpoints.
type SettingsHandler struct {
	settingsRepo repository.SettingsRepository
	probe        *fiscal.Probe
}

// NewSettingsHandler builds the handler.
func NewSettingsHandler(settingsRepo repository.SettingsRepository, probe *fiscal.Probe) *SettingsHandler {
	return &SettingsHandler{settingsRepo: settingsRepo, probe: probe}
}

// Get returns current settings with credentials redacted.
// GET /api/fiscal/device/settings
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	settings, err := h.settingsRepo.Get(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.FromDeviceSettings(settings))
}

// Update replaces the operator-editable settings.
// PUT /api/fiscal/device/settings
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var in dto.DeviceSettingsRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invalid body"})
	}
	if in.EnableDevice && (in.DeviceIP == "" || in.Port == 0) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "device IP and port are required when the device is enabled"})
	}
	settings := &entity.DeviceSettings{
		EnableDevice:      in.EnableDevice,
		FiscalizeOnSubmit: in.FiscalizeOnSubmit,
		DeviceIP:          in.DeviceIP,
		Port:              in.Port,
		ControlUnitPIN:    in.ControlUnitPIN,
		BearerToken:       in.BearerToken,
		DebugMode:         in.DebugMode,
	}
	if err := h.settingsRepo.Update(c.Context(), settings); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(fiber.Map{"updated": true})
}

// Status runs the connectivity probe and reports the tri-state result.
// GET /api/fiscal/device/status
func (h *SettingsHandler) Status(c *fiber.Ctx) error {
	result, err := h.probe.Check(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(result)
}
