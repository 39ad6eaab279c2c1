package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"stock-ledger/core/metrics"

	"go.uber.org/zap"
)

// IntentKind selects what an Intent changes.
type IntentKind string

const (
	IntentSetQuantity       IntentKind = "set_quantity"
	IntentIncrementQuantity IntentKind = "increment_quantity"
	IntentSetRequired       IntentKind = "set_required"
)

// Intent is one requested change against a target entry.
type Intent struct {
	Kind   IntentKind
	Target Identity
	Value  int
	Actor  Actor
}

func (in Intent) validate() error {
	if err := in.Target.Validate(); err != nil {
		return err
	}
	switch in.Kind {
	case IntentSetQuantity, IntentSetRequired:
		if in.Value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, in.Kind)
		}
	case IntentIncrementQuantity:
	default:
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidInput, in.Kind)
	}
	return nil
}

// ApplyResult describes what a batch did.
type ApplyResult struct {
	Target Identity `json:"target"`
	Before Entry    `json:"before"`
	// Quantity is the target's post-intent absolute quantity.
	Quantity int `json:"quantity"`
	Required int `json:"required"`

	Submitted  int            `json:"submitted"`
	Applied    int            `json:"applied"`
	Attempts   int            `json:"attempts"`
	Ops        []UpdateOp     `json:"ops"`
	AppliedOps []UpdateOp     `json:"applied_ops"`
	History    []HistoryEvent `json:"history"`

	// HistoryErr is set when the ops applied but their history could not be
	// appended.
	HistoryErr error `json:"-"`
}

// CoordinatorStore is the slice of Store the coordinator needs.
type CoordinatorStore interface {
	EntryReader
	BatchWriter
	HistoryWriter
	RecipeSource
}

// Coordinator turns intents into ordered batches and submits them.
type Coordinator struct {
	store   CoordinatorStore
	recipes *RecipeResolver
	mirror  *Synchronizer
	retry   RetryConfig
	logger  *zap.Logger
	clock   Clock
}

// NewCoordinator wires a coordinator over store.
func NewCoordinator(store CoordinatorStore, logger *zap.Logger, retry RetryConfig, clock Clock) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:   store,
		recipes: NewRecipeResolver(store, clock),
		mirror:  NewSynchronizer(clock),
		retry:   retry.normalized(),
		logger:  logger,
		clock:   clock,
	}
}

// Apply executes one intent. The batch is [materials, target, mirror]; on a
// shortfall nothing is written. When only part of the batch applied the
// result is returned together with a *PartialApplyError.
func (c *Coordinator) Apply(ctx context.Context, in Intent) (*ApplyResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	target, ok, err := getEntry(ctx, c.store, in.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", in.Target, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, in.Target)
	}

	res := &ApplyResult{
		Target:   target.Identity,
		Before:   target,
		Quantity: target.Quantity,
		Required: target.Required,
	}

	if in.Kind == IntentSetRequired {
		var plan Plan
		plan.add(
			SetRequired(target.Identity, in.Value),
			newEvent(c.clock, target.Identity, ActionRequiredSet,
				fmt.Sprintf("%d -> %d", target.Required, in.Value), in.Actor),
		)
		res.Required = in.Value
		return c.submit(ctx, res, plan)
	}

	if in.Kind == IntentIncrementQuantity && in.Value == 0 {
		return res, nil
	}

	recipe, err := c.recipes.Recipe(ctx, target.Identity)
	if err != nil {
		return nil, err
	}

	snapshot, err := c.snapshot(ctx, target, recipe)
	if err != nil {
		return nil, err
	}

	newQty, own, err := c.ownOp(target, in)
	if err != nil {
		return nil, err
	}

	materials, err := c.recipes.PlanAdjust(recipe, snapshot, target.Quantity, newQty, in.Actor)
	if err != nil {
		var short *InsufficientMaterialsError
		if errors.As(err, &short) {
			metrics.RecordShortfall()
			c.logger.Info("Crafted change rejected for insufficient materials",
				zap.String("target", target.String()),
				zap.Int("shortfalls", len(short.Shortfalls)),
			)
		}
		return nil, err
	}

	var plan Plan
	plan.Append(materials)
	plan.Append(own)
	plan.Append(c.mirror.PlanMirror(target, snapshot, newQty, in.Actor))

	res.Quantity = newQty
	return c.submit(ctx, res, plan)
}

// snapshot reads the recipe materials and the mirror in one batched read.
func (c *Coordinator) snapshot(ctx context.Context, target Entry, recipe *Recipe) (map[Identity]Entry, error) {
	snapshot := map[Identity]Entry{target.Identity: target}

	var ids []Identity
	if recipe != nil {
		for _, line := range recipe.Materials {
			ids = append(ids, line.Identity())
		}
	}
	if mirrorID, ok := target.Mirror(); ok {
		ids = append(ids, mirrorID)
	}
	if len(ids) == 0 {
		return snapshot, nil
	}

	others, err := c.store.GetEntries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot for %s: %w", target.Identity, err)
	}
	for id, e := range others {
		snapshot[id] = e
	}
	return snapshot, nil
}

// ownOp computes the target's op and post-intent quantity. An increment that
// would go below zero becomes a set to zero; one that overflows is rejected.
func (c *Coordinator) ownOp(target Entry, in Intent) (int, Plan, error) {
	var plan Plan
	before := target.Quantity

	if in.Kind == IntentSetQuantity {
		plan.add(
			SetQuantity(target.Identity, in.Value),
			newEvent(c.clock, target.Identity, ActionQuantitySet,
				fmt.Sprintf("%d -> %d", before, in.Value), in.Actor),
		)
		return in.Value, plan, nil
	}

	if in.Value > 0 && before > math.MaxInt-in.Value {
		return 0, Plan{}, fmt.Errorf("%w: %s %+d overflows quantity %d", ErrInvalidInput, target.Identity, in.Value, before)
	}
	after := before + in.Value
	if after < 0 {
		plan.add(
			SetQuantity(target.Identity, 0),
			newEvent(c.clock, target.Identity, ActionQuantitySet,
				fmt.Sprintf("%d -> 0 (requested %+d)", before, in.Value), in.Actor),
		)
		return 0, plan, nil
	}

	action := ActionQuantityAdded
	if in.Value < 0 {
		action = ActionQuantityRemoved
	}
	plan.add(
		Increment(target.Identity, in.Value),
		newEvent(c.clock, target.Identity, action,
			fmt.Sprintf("%+d (%d -> %d)", in.Value, before, after), in.Actor),
	)
	return after, plan, nil
}

// submit sends the batch and appends history for the ops that applied.
func (c *Coordinator) submit(ctx context.Context, res *ApplyResult, plan Plan) (*ApplyResult, error) {
	res.Ops = plan.Ops
	res.Submitted = plan.Len()

	bulk, attempts, err := c.bulkApply(ctx, plan.Ops)
	res.Attempts = attempts
	if err != nil && bulk.AppliedCount() == 0 {
		metrics.ObserveBatch("failed")
		c.logger.Error("Batch failed",
			zap.String("target", res.Target.String()),
			zap.Int("submitted", res.Submitted),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to apply batch for %s: %w", res.Target, err)
	}

	var (
		events []HistoryEvent
		failed []UpdateOp
	)
	for i, op := range plan.Ops {
		ok := bulk.OK(i)
		metrics.ObserveOp(string(op.Operation), ok)
		if ok {
			res.AppliedOps = append(res.AppliedOps, op)
			events = append(events, plan.Events[i])
		} else {
			failed = append(failed, op)
		}
	}
	res.Applied = len(res.AppliedOps)

	if len(events) > 0 {
		if herr := c.store.AppendHistory(ctx, events); herr != nil {
			res.HistoryErr = herr
			c.logger.Warn("Failed to append history for applied ops",
				zap.String("target", res.Target.String()),
				zap.Int("events", len(events)),
				zap.Error(herr),
			)
		} else {
			res.History = events
		}
	}

	if res.Applied < res.Submitted {
		metrics.ObserveBatch("partial")
		c.logger.Warn("Batch applied partially",
			zap.String("target", res.Target.String()),
			zap.Int("applied", res.Applied),
			zap.Int("submitted", res.Submitted),
			zap.Error(err),
		)
		return res, &PartialApplyError{
			Applied:    res.Applied,
			Submitted:  res.Submitted,
			AppliedOps: res.AppliedOps,
			FailedOps:  failed,
			Cause:      err,
		}
	}

	metrics.ObserveBatch("applied")
	c.logger.Debug("Batch applied",
		zap.String("target", res.Target.String()),
		zap.Int("ops", res.Submitted),
		zap.Int("attempts", attempts),
	)
	return res, nil
}

// bulkApply retries the whole batch on transient failures, but only while no
// op is known to have applied.
func (c *Coordinator) bulkApply(ctx context.Context, ops []UpdateOp) (BulkResult, int, error) {
	backoff := c.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		res, err := c.store.BulkApply(ctx, ops)
		if err == nil {
			return res, attempt, nil
		}
		if !IsTransient(err) || res.AppliedCount() > 0 || attempt >= c.retry.MaxAttempts {
			return res, attempt, err
		}

		metrics.RecordRetry()
		c.logger.Warn("Transient store failure, retrying batch",
			zap.Int("attempt", attempt),
			zap.Int("ops", len(ops)),
			zap.Error(err),
		)

		next, werr := c.retry.wait(ctx, backoff)
		if werr != nil {
			return res, attempt, fmt.Errorf("%w: %v", err, werr)
		}
		backoff = next
	}
}
