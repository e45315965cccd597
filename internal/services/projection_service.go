package services

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/cache"
	"cashflow/internal/core"
	"cashflow/internal/log"
	"cashflow/internal/projection"
	"cashflow/internal/sheets"
)

// LedgerStore loads the records that feed a projection.
type LedgerStore interface {
	LoadLedger(ctx context.Context, accountID string) (core.Ledger, error)
	ListAccounts(ctx context.Context) ([]core.AccountSnapshot, error)
}

// ProjectionStore persists the outcome of a projection.
type ProjectionStore interface {
	ReplaceProjection(ctx context.Context, accountID string, included, skipped []core.GeneratedTransaction) error
}

// ProjectionService loads a ledger, runs the engine and persists, exports and
// caches the result.
type ProjectionService struct {
	ledgers     LedgerStore
	projections ProjectionStore
	engine      *projection.Engine
	exporter    sheets.ProjectionWriter
	cache       cache.Cache[*projection.Result]
	logger      *log.Logger
	concurrency int
}

type ProjectionOption func(*ProjectionService)

// WithExporter publishes every fresh projection through w.
func WithExporter(w sheets.ProjectionWriter) ProjectionOption {
	return func(s *ProjectionService) { s.exporter = w }
}

// WithResultCache serves repeated requests for the same account, window and
// instant from c. Callers that want hits must reuse the instant, e.g. by
// truncating it to a fixed resolution.
func WithResultCache(c cache.Cache[*projection.Result]) ProjectionOption {
	return func(s *ProjectionService) { s.cache = c }
}

func WithLogger(l *log.Logger) ProjectionOption {
	return func(s *ProjectionService) { s.logger = l }
}

// WithAccountConcurrency bounds how many accounts ProjectAll runs at once.
func WithAccountConcurrency(n int) ProjectionOption {
	return func(s *ProjectionService) { s.concurrency = n }
}

func NewProjectionService(ledgers LedgerStore, projections ProjectionStore, engine *projection.Engine, opts ...ProjectionOption) *ProjectionService {
	s := &ProjectionService{
		ledgers:     ledgers,
		projections: projections,
		engine:      engine,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		cfg := log.DefaultConfig()
		cfg.Output = io.Discard
		s.logger = log.New(cfg)
	}
	s.logger = s.logger.WithComponent(log.ComponentEngine)
	return s
}

// Project computes the account's projection for window as seen at now.
func (s *ProjectionService) Project(ctx context.Context, accountID string, window core.Window, now time.Time) (*projection.Result, error) {
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("invalid window: %w", err)
	}

	key := cacheKey(accountID, window, now)
	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			s.logger.DebugContext(ctx, "Projection served from cache",
				log.FieldAccountID, accountID,
				log.FieldCacheHit, true)
			return res, nil
		}
	}

	start := time.Now()
	ledger, err := s.ledgers.LoadLedger(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", accountID, err)
	}

	res, err := s.engine.Project(ctx, projection.Request{Ledger: ledger, Window: window, Now: now})
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", accountID, err)
	}

	if err := s.projections.ReplaceProjection(ctx, accountID, res.Included, res.Skipped); err != nil {
		return nil, fmt.Errorf("persist projection %s: %w", accountID, err)
	}

	fields := log.NewFields().
		WithOperation(log.OpProject).
		WithProjection(accountID, len(res.Included), len(res.Skipped), len(res.Purchases))
	fields[log.FieldWindowFrom] = window.From.Format(time.DateOnly)
	fields[log.FieldWindowTo] = window.To.Format(time.DateOnly)
	fields[log.FieldDuration] = time.Since(start).Milliseconds()

	if s.exporter != nil {
		ref, err := s.exporter.WriteProjection(ctx, accountID, ExportRows(res))
		if err != nil {
			// the projection is already persisted; export is retried on the next run
			s.logger.ErrorContext(ctx, "Projection export failed",
				log.FieldAccountID, accountID,
				log.FieldError, err)
		} else {
			fields[log.FieldExportRef] = ref
		}
	}

	s.logger.InfoContext(ctx, "Projection computed", fields.ToSlice()...)

	if s.cache != nil {
		s.cache.Set(key, res)
	}
	return res, nil
}

// ProjectAll projects every stored account over window. The first failure
// cancels the remaining accounts.
func (s *ProjectionService) ProjectAll(ctx context.Context, window core.Window, now time.Time) ([]*projection.Result, error) {
	accounts, err := s.ledgers.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	results := make([]*projection.Result, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, a := range accounts {
		g.Go(func() error {
			res, err := s.Project(gctx, a.AccountID, window, now)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Invalidate drops every cached projection of accountID.
func (s *ProjectionService) Invalidate(accountID string) int {
	if s.cache == nil {
		return 0
	}
	prefix := accountID + "|"
	return s.cache.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// ExportRows returns the balanced transactions and the scheduled purchases in
// date order.
func ExportRows(res *projection.Result) []core.GeneratedTransaction {
	rows := make([]core.GeneratedTransaction, 0, len(res.Transactions)+len(res.Purchases))
	rows = append(rows, res.Transactions...)
	rows = append(rows, res.Purchases...)
	slices.SortStableFunc(rows, func(a, b core.GeneratedTransaction) int {
		return a.Date.Compare(b.Date)
	})
	return rows
}

func cacheKey(accountID string, window core.Window, now time.Time) string {
	return strings.Join([]string{
		accountID,
		window.From.UTC().Format(time.RFC3339Nano),
		window.To.UTC().Format(time.RFC3339Nano),
		now.UTC().Format(time.RFC3339Nano),
	}, "|")
}
