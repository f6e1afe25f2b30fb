package payout

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"fitpass/internal/logger"
	"fitpass/internal/metrics"
)

// BillableMembership is the slice of a membership the aggregator needs: who to
// bill against and how much gross the period is worth.
type BillableMembership struct {
	UserID     int
	PlanType   PlanType
	GrossCents int64
	Currency   string
}

type MembershipSource interface {
	ListBillableForPeriod(ctx context.Context, from, to time.Time) ([]BillableMembership, error)
}

type VisitSource interface {
	VisitCountsForUser(ctx context.Context, userID int, from, to time.Time) ([]VisitCount, error)
}

type GymAccountSource interface {
	PayoutAccount(ctx context.Context, gymID int) (string, error)
}

// TransferClient executes a transfer with the external payment API and returns
// the external transfer id.
type TransferClient interface {
	CreateTransfer(ctx context.Context, destinationAccount string, amountCents int64, currency string, metadata map[string]string) (string, error)
}

// Ledger is the slice of Repository the aggregator uses.
type Ledger interface {
	GetLatestTransfer(ctx context.Context, userID, gymID int, period Period) (*TransferLog, error)
	CreatePendingTransfer(ctx context.Context, userID, gymID int, period Period, baseCents int64, currency string) (*TransferLog, error)
	CreateRetryTransfer(ctx context.Context, failed *TransferLog) (*TransferLog, error)
	CreateDeferral(ctx context.Context, userID, gymID int, period Period, amountCents int64, currency string) (bool, error)
	MarkCompleted(ctx context.Context, id int, stripeTransferID string) error
	MarkFailed(ctx context.Context, id int, reason string) error
	GetCarriedBalance(ctx context.Context, gymID int) (int64, error)
}

// Locker serializes overlapping runs for the same period. Advisory only:
// correctness comes from the ledger's unique key and optimistic transitions.
type Locker interface {
	Acquire(ctx context.Context, period Period) (bool, error)
	Release(ctx context.Context, period Period)
}

// Aggregator walks every billable membership for a period, splits the gross
// through the calculator and drives each gym cut to a terminal ledger state.
// Safe under at-least-once invocation.
type Aggregator struct {
	cfg         Config
	calc        *Calculator
	memberships MembershipSource
	visits      VisitSource
	gyms        GymAccountSource
	transfers   TransferClient
	ledger      Ledger
	lock        Locker
}

func NewAggregator(
	cfg Config,
	memberships MembershipSource,
	visits VisitSource,
	gyms GymAccountSource,
	transfers TransferClient,
	ledger Ledger,
	lock Locker,
) *Aggregator {
	return &Aggregator{
		cfg:         cfg,
		calc:        NewCalculator(cfg),
		memberships: memberships,
		visits:      visits,
		gyms:        gyms,
		transfers:   transfers,
		ledger:      ledger,
		lock:        lock,
	}
}

// Run processes one billing period. Per-user failures are collected into the
// report, never aborting the batch; only failures to even start the run return
// an error.
func (a *Aggregator) Run(ctx context.Context, period Period) (*RunReport, error) {
	start := time.Now()

	if a.lock != nil {
		acquired, err := a.lock.Acquire(ctx, period)
		if err != nil {
			logger.Errorf("payout run lock unavailable, continuing unlocked: %v", err)
		} else if !acquired {
			return nil, ErrRunInProgress
		} else {
			defer a.lock.Release(ctx, period)
		}
	}

	from, to := period.Bounds()
	members, err := a.memberships.ListBillableForPeriod(ctx, from, to)
	if err != nil {
		metrics.RecordPayoutRun("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to list billable memberships: %w", err)
	}

	report := &RunReport{
		Period:      period,
		Memberships: len(members),
		StartedAt:   start,
	}

	workers := a.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
	)

	for _, m := range members {
		wg.Add(1)
		sem <- struct{}{}
		go func(m BillableMembership) {
			defer wg.Done()
			defer func() { <-sem }()
			a.processUser(ctx, m, period, report, &mu)
		}(m)
	}
	wg.Wait()

	report.FinishedAt = time.Now()

	status := "ok"
	if len(report.Errors) > 0 {
		status = "partial"
	}
	metrics.RecordPayoutRun(status, report.FinishedAt.Sub(start).Seconds())

	logger.Info("payout run finished",
		"period", period.String(),
		"memberships", report.Memberships,
		"completed", report.TransfersCompleted,
		"failed", report.TransfersFailed,
		"skipped", report.TransfersSkipped,
		"deferred", report.TransfersDeferred,
		"total_paid_cents", report.TotalPaidCents,
		"errors", len(report.Errors),
	)

	return report, nil
}

func (a *Aggregator) processUser(ctx context.Context, m BillableMembership, period Period, report *RunReport, mu *sync.Mutex) {
	from, to := period.Bounds()

	visits, err := a.visits.VisitCountsForUser(ctx, m.UserID, from, to)
	if err != nil {
		addError(report, mu, m.UserID, 0, fmt.Sprintf("failed to load visits: %v", err))
		return
	}

	calc, err := a.calc.ComputeCut(m.PlanType, m.GrossCents, visits)
	if err != nil {
		addError(report, mu, m.UserID, 0, err.Error())
		return
	}

	for _, cut := range calc.GymCuts {
		if cut.AmountCents <= 0 {
			continue
		}
		a.settleCut(ctx, m, period, cut, report, mu)
	}
}

// settleCut drives one (user, gym, period) cut to a terminal ledger state.
func (a *Aggregator) settleCut(ctx context.Context, m BillableMembership, period Period, cut GymCut, report *RunReport, mu *sync.Mutex) {
	latest, err := a.ledger.GetLatestTransfer(ctx, m.UserID, cut.GymID, period)
	if err != nil {
		addError(report, mu, m.UserID, cut.GymID, fmt.Sprintf("failed to read ledger: %v", err))
		return
	}

	var log *TransferLog
	switch {
	case latest == nil:
		carried, err := a.ledger.GetCarriedBalance(ctx, cut.GymID)
		if err != nil {
			addError(report, mu, m.UserID, cut.GymID, fmt.Sprintf("failed to read carried balance: %v", err))
			return
		}

		if cut.AmountCents+carried < a.cfg.MinPayoutCents {
			inserted, err := a.ledger.CreateDeferral(ctx, m.UserID, cut.GymID, period, cut.AmountCents, m.Currency)
			if err != nil {
				addError(report, mu, m.UserID, cut.GymID, fmt.Sprintf("failed to record deferral: %v", err))
				return
			}
			mu.Lock()
			if inserted {
				report.TransfersDeferred++
				metrics.RecordDeferral()
			} else {
				report.TransfersSkipped++
			}
			mu.Unlock()
			return
		}

		log, err = a.ledger.CreatePendingTransfer(ctx, m.UserID, cut.GymID, period, cut.AmountCents, m.Currency)
		if err == ErrConcurrencyConflict {
			a.skip(report, mu)
			return
		}
		if err != nil {
			addError(report, mu, m.UserID, cut.GymID, fmt.Sprintf("failed to create transfer log: %v", err))
			return
		}

	case latest.Status.Terminal() && latest.Status != StatusFailed:
		// completed or deferred: nothing left to do for this period.
		a.skip(report, mu)
		return

	case latest.Status == StatusFailed:
		log, err = a.ledger.CreateRetryTransfer(ctx, latest)
		if err == ErrConcurrencyConflict {
			a.skip(report, mu)
			return
		}
		if err != nil {
			addError(report, mu, m.UserID, cut.GymID, fmt.Sprintf("failed to create retry: %v", err))
			return
		}

	default:
		// Still pending from an earlier invocation that died mid-flight.
		log = latest
	}

	a.execute(ctx, log, report, mu)
}

func (a *Aggregator) execute(ctx context.Context, log *TransferLog, report *RunReport, mu *sync.Mutex) {
	account, err := a.gyms.PayoutAccount(ctx, log.GymID)
	if err != nil {
		a.fail(ctx, log, fmt.Sprintf("no payout account: %v", err), report, mu)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, a.transferTimeout())
	defer cancel()

	transferID, err := a.transfers.CreateTransfer(tctx, account, log.AmountCents, log.Currency, map[string]string{
		"user_id": strconv.Itoa(log.UserID),
		"gym_id":  strconv.Itoa(log.GymID),
		"period":  log.Period.String(),
		"log_id":  strconv.Itoa(log.ID),
	})
	if err != nil {
		a.fail(ctx, log, err.Error(), report, mu)
		return
	}

	if err := a.ledger.MarkCompleted(ctx, log.ID, transferID); err != nil {
		if err == ErrConcurrencyConflict {
			// A concurrent run resolved the row first; the money moved once
			// either way, Stripe dedupes on our metadata.
			a.skip(report, mu)
			return
		}
		addError(report, mu, log.UserID, log.GymID, fmt.Sprintf("transfer %s executed but not recorded: %v", transferID, err))
		return
	}

	mu.Lock()
	report.TransfersCompleted++
	report.TotalPaidCents += log.AmountCents
	mu.Unlock()
	metrics.RecordTransfer("completed", log.AmountCents)
}

func (a *Aggregator) fail(ctx context.Context, log *TransferLog, reason string, report *RunReport, mu *sync.Mutex) {
	if err := a.ledger.MarkFailed(ctx, log.ID, reason); err != nil {
		if err == ErrConcurrencyConflict {
			a.skip(report, mu)
			return
		}
		reason = fmt.Sprintf("%s (and failed to record: %v)", reason, err)
	}

	mu.Lock()
	report.TransfersFailed++
	mu.Unlock()
	metrics.RecordTransfer("failed", log.AmountCents)
	addError(report, mu, log.UserID, log.GymID, reason)
}

func (a *Aggregator) skip(report *RunReport, mu *sync.Mutex) {
	mu.Lock()
	report.TransfersSkipped++
	mu.Unlock()
}

func (a *Aggregator) transferTimeout() time.Duration {
	if a.cfg.TransferTimeout <= 0 {
		return 15 * time.Second
	}
	return a.cfg.TransferTimeout
}

func addError(report *RunReport, mu *sync.Mutex, userID, gymID int, reason string) {
	mu.Lock()
	report.Errors = append(report.Errors, RunError{UserID: userID, GymID: gymID, Reason: reason})
	mu.Unlock()
}
