package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/aqiq/tims-fiscal/internal/application/dto"
	"github.com/aqiq/tims-fiscal/internal/application/fiscal"
	"github.com/aqiq/tims-fiscal/internal/domain"
	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
	domtims "github.com/aqiq/tims-fiscal/internal/domain/tims"
)

// FiscalHandler serves the fiscalization queue endpoints.
type FiscalHandler struct {
	dispatcher *fiscal.Dispatcher
	queueRepo  repository.QueueRepository
}

// NewFiscalHandler builds the handler.
func NewFiscalHandler(dispatcher *fiscal.Dispatcher, queueRepo repository.QueueRepository) *FiscalHandler {
	return &FiscalHandler{dispatcher: dispatcher, queueRepo: queueRepo}
}

// Enqueue queues an invoice on the on-submit path: configuration gates are a
// silent skip, never an error to the submitter.
// POST /api/fiscal/queue/:invoiceID
func (h *FiscalHandler) Enqueue(c *fiber.Ctx) error {
	invoiceID := c.Params("invoiceID")
	if invoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "invoice id required"})
	}
	if err := h.dispatcher.Enqueue(c.Context(), invoiceID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
}

// FiscalizeNow runs a synchronous, operator-initiated attempt. Unlike the
// on-submit path every problem is surfaced.
// POST /api/fiscal/invoices/:invoiceID/fiscalize
func (h *FiscalHandler) FiscalizeNow(c *fiber.Ctx) error {
	invoiceID := c.Params("invoiceID")
	if invoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "invoice id required"})
	}

	err := h.dispatcher.FiscalizeNow(c.Context(), invoiceID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "invoice not found"})
		case errors.Is(err, domain.ErrAlreadyFiscalized):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ALREADY_FISCALIZED", Message: "invoice is already fiscalized"})
		case errors.Is(err, domain.ErrDuplicate):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ALREADY_QUEUED", Message: "invoice already has an active queue entry"})
		case errors.Is(err, domain.ErrDeviceDisabled), errors.Is(err, domain.ErrNotConfigured):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "DEVICE_NOT_READY", Message: err.Error()})
		}
		switch domtims.KindOf(err) {
		case domtims.KindValidation:
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		case domtims.KindConfiguration:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "CONFIGURATION", Message: err.Error()})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "DEVICE_ERROR", Message: err.Error()})
		}
	}
	return c.JSON(fiber.Map{"fiscalized": true})
}

// ListQueue lists queue entries by status (default Failed, the operator's
// main concern).
// GET /api/fiscal/queue?status=Failed&limit=50
func (h *FiscalHandler) ListQueue(c *fiber.Ctx) error {
	status := c.Query("status", entity.QueueStatusFailed)
	switch status {
	case entity.QueueStatusQueued, entity.QueueStatusProcessing,
		entity.QueueStatusCompleted, entity.QueueStatusFailed:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "unknown status " + status})
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	entries, err := h.queueRepo.ListByStatus(c.Context(), status, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.FromQueueEntries(entries))
}

// ListByInvoice shows the full attempt lineage of one invoice.
// GET /api/fiscal/queue/invoice/:invoiceID
func (h *FiscalHandler) ListByInvoice(c *fiber.Ctx) error {
	invoiceID := c.Params("invoiceID")
	if invoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "invoice id required"})
	}
	entries, err := h.queueRepo.ListByInvoice(c.Context(), invoiceID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.FromQueueEntries(entries))
}
