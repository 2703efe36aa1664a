// Package fiscal orchestrates the fiscalization queue: the dispatcher state
// machine (Queued -> Processing -> Completed|Failed with bounded backed-off
// retries), the self-healing sweeper and the device connectivity probe.
package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/aqiq/tims-fiscal/internal/domain"
	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
	domtims "github.com/aqiq/tims-fiscal/internal/domain/tims"
	infratims "github.com/aqiq/tims-fiscal/internal/infrastructure/tims"
	"github.com/aqiq/tims-fiscal/pkg/logger"
)

// Config tunes the retry behavior of the queue.
type Config struct {
	MaxRetries  int           // attempts before an entry fails permanently
	BackoffBase time.Duration // first retry delay; doubles per retry
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Minute
	}
	return c
}

// Dispatcher runs fiscalization attempts. One attempt is one background task
// that runs to completion; nothing suspends mid-attempt except the network
// call itself.
type Dispatcher struct {
	queueRepo    repository.QueueRepository
	invoiceRepo  repository.InvoiceRepository
	settingsRepo repository.SettingsRepository
	txRunner     TxRunner
	signer       infratims.Signer
	cfg          Config
	log          *logger.Logger

	// schedule defers a retry; time.AfterFunc in production, synchronous in
	// tests.
	schedule func(d time.Duration, fn func())
}

// NewDispatcher builds the dispatcher.
func NewDispatcher(
	queueRepo repository.QueueRepository,
	invoiceRepo repository.InvoiceRepository,
	settingsRepo repository.SettingsRepository,
	txRunner TxRunner,
	signer infratims.Signer,
	cfg Config,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		queueRepo:    queueRepo,
		invoiceRepo:  invoiceRepo,
		settingsRepo: settingsRepo,
		txRunner:     txRunner,
		signer:       signer,
		cfg:          cfg.withDefaults(),
		log:          log,
		schedule:     func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// Enqueue is the on-submit entry point. Configuration gates (device disabled,
// auto-fiscalization off, missing/fiscalized/return invoice) are silent
// skips: the submitting user must never see a fiscal error from this path.
// The first attempt starts immediately in the background.
func (d *Dispatcher) Enqueue(ctx context.Context, invoiceID string) error {
	settings, err := d.settingsRepo.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.EnableDevice || !settings.FiscalizeOnSubmit {
		d.log.Debug().Str("invoice", invoiceID).Msg("fiscal device not engaged, skipping enqueue")
		return nil
	}

	inv, err := d.invoiceRepo.GetSnapshot(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil || inv.Fiscalized || inv.IsReturn {
		return nil
	}

	entry := &entity.QueueEntry{InvoiceID: invoiceID}
	if err := d.queueRepo.InsertIfAbsent(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			d.log.Debug().Str("invoice", invoiceID).Msg("invoice already queued, skipping")
			return nil
		}
		return err
	}
	d.log.Info().Str("invoice", invoiceID).Str("entry", entry.ID).Msg("invoice queued for fiscalization")

	go d.runEntry(entry.ID)
	return nil
}

// FiscalizeNow is the manual, synchronous entry point. Unlike Enqueue it
// surfaces every configuration and validation problem to the caller.
func (d *Dispatcher) FiscalizeNow(ctx context.Context, invoiceID string) error {
	inv, err := d.invoiceRepo.GetSnapshot(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return domain.ErrNotFound
	}
	if inv.Fiscalized {
		return domain.ErrAlreadyFiscalized
	}
	if inv.IsReturn && inv.ReturnAgainst == "" {
		return domtims.ValidationErr("credit note %s has no return-against invoice", invoiceID)
	}

	settings, err := d.settingsRepo.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.EnableDevice {
		return domain.ErrDeviceDisabled
	}
	if !settings.Configured() {
		return domain.ErrNotConfigured
	}

	entry := &entity.QueueEntry{InvoiceID: invoiceID}
	if err := d.queueRepo.InsertIfAbsent(ctx, entry); err != nil {
		return err
	}
	return d.execute(ctx, entry.ID)
}

// runEntry executes one background attempt with its own lifetime, detached
// from whatever request created it.
func (d *Dispatcher) runEntry(entryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), infratims.SignTimeout+30*time.Second)
	defer cancel()
	if err := d.execute(ctx, entryID); err != nil {
		// Background attempts never propagate; the queue entry and the log
		// are the record.
		d.log.Warn().Err(err).Str("entry", entryID).Msg("fiscalization attempt failed")
	}
}

// execute performs one attempt: claim the entry, re-verify the invoice,
// format, sign, commit the result. It returns the classified error so the
// synchronous caller can surface it; queue state is updated either way.
func (d *Dispatcher) execute(ctx context.Context, entryID string) error {
	entry, err := d.queueRepo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if err := d.queueRepo.MarkProcessing(ctx, entryID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Someone else claimed it, or it already finished.
			return nil
		}
		return err
	}

	inv, err := d.invoiceRepo.GetSnapshot(ctx, entry.InvoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return d.failTerminal(ctx, entry, domtims.ValidationErr("invoice %s no longer exists", entry.InvoiceID))
	}
	if inv.Fiscalized {
		// Duplicate attempt after a concurrent success: commit-time no-op.
		if err := d.queueRepo.MarkCompleted(ctx, entryID, nil); err != nil {
			return err
		}
		d.log.Info().Str("invoice", inv.ID).Msg("invoice already fiscalized, attempt is a no-op")
		return nil
	}

	// Settings are re-read on every attempt; an edit between retries applies here.
	settings, err := d.settingsRepo.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.EnableDevice {
		// Configuration gate, not a failure: the retry budget stays untouched
		// and the sweeper revisits the entry once the device is re-enabled.
		if err := d.queueRepo.MarkFailed(ctx, entryID, domain.ErrDeviceDisabled.Error(), entry.RetryCount); err != nil {
			return err
		}
		attemptsTotal.WithLabelValues("skipped_disabled").Inc()
		return domain.ErrDeviceDisabled
	}

	items, err := d.invoiceRepo.GetItems(ctx, entry.InvoiceID)
	if err != nil {
		return err
	}

	payload, err := domtims.Format(inv, items, settings)
	if err != nil {
		return d.failTerminal(ctx, entry, err)
	}

	signCtx, cancel := context.WithTimeout(ctx, infratims.SignTimeout)
	defer cancel()
	resp, err := d.signer.Sign(signCtx, payload, settings, 1)
	if err != nil {
		return d.failAttempt(ctx, entry, err)
	}

	// Success: invoice fields and entry status commit together.
	err = d.txRunner.RunFiscal(ctx, func(
		queueRepo repository.QueueRepository,
		invoiceRepo repository.InvoiceRepository,
	) error {
		if err := invoiceRepo.SetFiscalResult(ctx, inv.ID, resp.CUInvoiceNumber, resp.VerifyURL); err != nil {
			return err
		}
		return queueRepo.MarkCompleted(ctx, entryID, resp.Raw)
	})
	if err != nil {
		return d.failAttempt(ctx, entry, err)
	}

	attemptsTotal.WithLabelValues("completed").Inc()
	d.log.Info().
		Str("invoice", inv.ID).
		Str("fiscal_number", resp.CUInvoiceNumber).
		Msg("invoice fiscalized")
	return nil
}

// failTerminal records a deterministic failure. The retry budget is left
// untouched: re-running would reproduce the same error.
func (d *Dispatcher) failTerminal(ctx context.Context, entry *entity.QueueEntry, cause error) error {
	if err := d.queueRepo.MarkFailed(ctx, entry.ID, cause.Error(), entry.RetryCount); err != nil {
		return err
	}
	attemptsTotal.WithLabelValues("failed_" + domtims.KindOf(cause).String()).Inc()
	d.log.Error().Err(cause).
		Str("invoice", entry.InvoiceID).
		Str("entry", entry.ID).
		Msg("fiscalization failed permanently")
	return cause
}

// failAttempt records a retryable failure and schedules the next attempt with
// exponential backoff, or fails permanently once the budget is exhausted.
func (d *Dispatcher) failAttempt(ctx context.Context, entry *entity.QueueEntry, cause error) error {
	if !domtims.Retryable(cause) {
		return d.failTerminal(ctx, entry, cause)
	}

	retryCount := entry.RetryCount + 1
	if err := d.queueRepo.MarkFailed(ctx, entry.ID, cause.Error(), retryCount); err != nil {
		return err
	}
	attemptsTotal.WithLabelValues("failed_" + domtims.KindOf(cause).String()).Inc()

	if retryCount >= d.cfg.MaxRetries {
		permanentFailures.Inc()
		d.log.Error().Err(cause).
			Str("invoice", entry.InvoiceID).
			Str("entry", entry.ID).
			Int("retry_count", retryCount).
			Msg("fiscalization failed after retries, giving up")
		return cause
	}

	delay := d.cfg.BackoffBase << entry.RetryCount // 5m, 10m, 20m
	retriesScheduled.Inc()
	d.log.Warn().Err(cause).
		Str("invoice", entry.InvoiceID).
		Str("entry", entry.ID).
		Int("retry_count", retryCount).
		Dur("delay", delay).
		Msg("fiscalization attempt failed, retry scheduled")

	entryID := entry.ID
	d.schedule(delay, func() { d.requeueEntry(entryID) })
	return cause
}

// requeueEntry flips a Failed entry back to Queued and runs it. A conflict or
// duplicate means another path (sweeper, fresh enqueue) owns the invoice now.
func (d *Dispatcher) requeueEntry(entryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.queueRepo.Requeue(ctx, entryID); err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrDuplicate) {
			return
		}
		d.log.Error().Err(err).Str("entry", entryID).Msg("could not requeue entry")
		return
	}
	d.runEntry(entryID)
}
