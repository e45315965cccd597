package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/cron"
	"cashflow/internal/log"
	"cashflow/internal/storage"
)

// ScheduleStore reads ledgers and stores the cron schedule of each item.
type ScheduleStore interface {
	LoadLedger(ctx context.Context, accountID string) (core.Ledger, error)
	UpsertSchedule(ctx context.Context, s storage.Schedule) error
}

// ScheduleService keeps one cron expression per ledger item so an external
// scheduler can trigger materialization on each item's cadence.
type ScheduleService struct {
	store  ScheduleStore
	logger *log.Logger
}

func NewScheduleService(store ScheduleStore, logger *log.Logger) *ScheduleService {
	if logger == nil {
		cfg := log.DefaultConfig()
		cfg.Output = io.Discard
		logger = log.New(cfg)
	}
	return &ScheduleService{store: store, logger: logger.WithComponent(log.ComponentScheduler)}
}

// RefreshSchedules recomputes and stores the schedule of every item of the
// account. Wishlist items without an available date have nothing to fire on
// and are left out.
func (s *ScheduleService) RefreshSchedules(ctx context.Context, accountID string) ([]storage.Schedule, error) {
	ledger, err := s.store.LoadLedger(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", accountID, err)
	}

	schedules := Schedules(ledger)
	for _, sched := range schedules {
		if err := s.store.UpsertSchedule(ctx, sched); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "Schedules refreshed",
		log.FieldAccountID, accountID,
		log.FieldOperation, log.OpSchedule,
		"count", len(schedules))
	return schedules, nil
}

// Schedules derives the schedule of every item in the ledger, in ledger order.
func Schedules(l core.Ledger) []storage.Schedule {
	accountID := l.Account.AccountID
	var out []storage.Schedule
	add := func(id string, kind core.TransactionKind, rule *core.FrequencyRule, date time.Time) {
		out = append(out, storage.Schedule{
			AccountID:  accountID,
			ItemID:     id,
			Kind:       kind,
			Expression: cron.Expression(rule, date),
		})
	}

	for _, e := range l.Expenses {
		add(e.ID, core.KindExpense, &e.Frequency, e.BeginDate)
	}
	for _, i := range l.Incomes {
		add(i.ID, core.KindIncome, &i.Frequency, i.BeginDate)
	}
	for _, ln := range l.Loans {
		add(ln.ID, core.KindLoan, &ln.Frequency, ln.BeginDate)
	}
	for _, t := range l.Transfers {
		// incoming transfers are scheduled by their source account
		if t.SourceAccountID != accountID {
			continue
		}
		add(t.ID, core.KindTransfer, &t.Frequency, t.BeginDate)
	}
	for _, c := range l.CommutePasses {
		rule := core.FrequencyRule{Type: core.Weekly, Interval: 1, DayOfWeek: &c.DayOfWeek}
		add(c.ID, core.KindCommutePass, &rule, commuteStart(c))
	}
	for _, p := range l.Payrolls {
		add(p.ID, core.KindPayroll, nil, p.Date)
	}
	for _, w := range l.Wishlist {
		if w.AvailableDate != nil {
			add(w.ID, core.KindWishlist, nil, *w.AvailableDate)
		}
	}
	return out
}

// commuteStart is the pass's begin day at its start time.
func commuteStart(c core.CommutePass) time.Time {
	return c.StartOn(c.BeginDate)
}
