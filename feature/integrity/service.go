package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-ledger/core/ledger"
	"stock-ledger/core/metrics"
	"stock-ledger/feature/integrity/checks"
	"stock-ledger/feature/stock/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSchemaUnavailable is returned by CheckSchema when no database is wired.
var ErrSchemaUnavailable = errors.New("schema check requires a database")

// Service scans the ledger for broken invariants and repairs what it can.
type Service struct {
	store  ledger.Store
	engine *ledger.Service
	db     *gorm.DB
	cache  *reportCache
	logger *zap.Logger
}

// NewService creates a new integrity service. db may be nil when the ledger
// runs on the memory driver.
func NewService(store ledger.Store, engine *ledger.Service, db *gorm.DB, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		engine: engine,
		db:     db,
		cache:  newReportCache(ttl),
		logger: logger,
	}
}

// Report returns the cached report, or scans the ledger when the cache is
// stale or refresh is set.
func (s *Service) Report(ctx context.Context, refresh bool) (*Report, error) {
	if refresh {
		s.cache.invalidate()
	}
	return s.cache.get(func() (*Report, error) {
		return s.scan(ctx)
	})
}

func (s *Service) scan(ctx context.Context) (*Report, error) {
	start := time.Now()

	raw, err := s.store.ListEntries(ctx, ledger.RegistryRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw entries: %w", err)
	}
	crafted, err := s.store.ListEntries(ctx, ledger.RegistryCrafted)
	if err != nil {
		return nil, fmt.Errorf("failed to list crafted entries: %w", err)
	}
	recipes, err := s.store.ListRecipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	snap := checks.Snapshot{Raw: raw, Crafted: crafted, Recipes: recipes}
	report := &Report{
		GeneratedAt:  start.UTC(),
		Entries:      len(raw) + len(crafted),
		Recipes:      len(recipes),
		Links:        checks.CheckLinks(snap),
		RecipeIssues: checks.CheckRecipes(snap),
	}
	report.Summary.Issues = report.Links.Count() + len(report.RecipeIssues)
	report.Summary.Fixable = len(BuildPlan(report).Actions)

	metrics.SetIntegrityIssues(report.Summary.Issues)
	s.logger.Info("Integrity scan completed",
		zap.Int("entries", report.Entries),
		zap.Int("issues", report.Summary.Issues),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// BuildPlan derives repairs from a report. Diverged pairs are resynced from
// the raw side and same-registry links are cleared. Everything else is left
// to a person: a dangling link may point at an entry not created yet.
func BuildPlan(report *Report) *Plan {
	plan := &Plan{Actions: []Action{}, Manual: []string{}}
	if report == nil {
		return plan
	}

	for _, d := range report.Links.Diverged {
		mirror := d.Crafted
		plan.Actions = append(plan.Actions, Action{
			Type:   ActionResync,
			Target: d.Raw,
			Mirror: &mirror,
			Reason: fmt.Sprintf("raw %d, crafted %d", d.RawQuantity, d.CraftedQuantity),
		})
	}

	for _, b := range report.Links.Broken {
		switch b.Reason {
		case checks.ReasonSameRegistry:
			plan.Actions = append(plan.Actions, Action{
				Type:   ActionUnlink,
				Target: b.Entry,
				Reason: fmt.Sprintf("links to %s in its own registry", b.Target),
			})
		case checks.ReasonDangling:
			plan.Manual = append(plan.Manual, fmt.Sprintf("%s links to %s which does not exist", b.Entry, b.Target))
		default:
			plan.Manual = append(plan.Manual, fmt.Sprintf("%s links to %s which does not link back", b.Entry, b.Target))
		}
	}

	for _, id := range report.Links.UnlinkedIntermediates {
		plan.Manual = append(plan.Manual, fmt.Sprintf("%s is an intermediate without a linked item", id))
	}
	for _, r := range report.RecipeIssues {
		if r.ResultMissing {
			plan.Manual = append(plan.Manual, fmt.Sprintf("recipe for %s has no result entry", r.Result))
			continue
		}
		plan.Manual = append(plan.Manual, fmt.Sprintf("recipe for %s references missing materials %v", r.Result, r.MissingMaterials))
	}
	return plan
}

// ApplyFixes executes plan. Nothing runs unless opts.Confirmed is set and
// opts.DryRun is not. Execution stops at the first failing action and the
// number executed so far is returned with the error.
func (s *Service) ApplyFixes(ctx context.Context, plan *Plan, opts Options, actor ledger.Actor) (FixResult, error) {
	res := FixResult{DryRun: opts.DryRun}
	if plan == nil {
		return res, nil
	}
	res.Planned = len(plan.Actions)

	// Safety check: do not execute if not confirmed or dry-run
	if !opts.Confirmed || opts.DryRun {
		return res, nil
	}

	defer func() {
		if res.Executed > 0 {
			s.cache.invalidate()
			metrics.RecordIntegrityFixes(res.Executed)
		}
	}()

	for _, action := range plan.Actions {
		if err := s.apply(ctx, action, actor); err != nil {
			s.logger.Error("Integrity fix failed",
				zap.String("type", string(action.Type)),
				zap.String("target", action.Target.String()),
				zap.Int("executed", res.Executed),
				zap.Error(err),
			)
			return res, fmt.Errorf("failed to %s %s: %w", action.Type, action.Target, err)
		}
		res.Executed++
	}

	s.logger.Info("Integrity fixes applied", zap.Int("executed", res.Executed), zap.String("user", actor.UserName))
	return res, nil
}

func (s *Service) apply(ctx context.Context, action Action, actor ledger.Actor) error {
	switch action.Type {
	case ActionResync:
		// Re-read so a change made since the report is not rolled back.
		current, err := s.engine.Entry(ctx, action.Target)
		if err != nil {
			return err
		}
		_, err = s.engine.SetQuantity(ctx, action.Target, current.Quantity, actor)
		return err
	case ActionUnlink:
		return s.store.SetLink(ctx, action.Target, nil)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// CheckSchema compares the ledger tables with the gorm models.
func (s *Service) CheckSchema() (*checks.SchemaReport, error) {
	if s.db == nil {
		return nil, ErrSchemaUnavailable
	}
	return checks.CheckSchema(s.db, models.All())
}
