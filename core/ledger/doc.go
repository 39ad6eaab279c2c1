// Package ledger is the consistency engine behind the shared stock tracker.
//
// Quantities are kept in two registries: raw (collected) entries and crafted
// entries. Every mutation a front-end issues goes through this package, which
// keeps four cross-cutting rules true while several users edit concurrently.
//
// # Components
//
//   - RecipeResolver: computes the material debits or refunds implied by a
//     change in a crafted entry's quantity. Consumption is all-or-nothing.
//   - Synchronizer: propagates absolute quantities and tag membership between
//     the two entries of a mirror pair (the same logical item in both registries).
//   - WorkerTracker: the in-process "who is working on what" relation with at
//     most one holder per entry.
//   - Coordinator: turns one intent into an ordered batch
//     [materials, target, mirror], submits it to the Store and reports how much
//     of it actually applied.
//   - Service: the operation surface used by front-ends (HTTP handlers, CLI).
//
// # Store contract
//
// The Store is not transactional across records. BulkApply applies ops in
// submission order and reports per-op success. A transient failure is reported
// by wrapping ErrStoreUnavailable; the Coordinator retries the whole batch only
// when nothing is known to have applied. Retrying increments after an unknown
// outcome can double count; callers that need certainty re-read and issue a
// corrective set.
//
// Apply reads in three steps: the target, then its recipe, then the materials
// and mirror together in one GetEntries call. The later reads depend on the
// target, so they cannot be folded into the first.
//
// Every recipe-bearing change, up or down, requires all materials to exist
// and to stay within int range; otherwise nothing is submitted.
//
// # Usage
//
//	svc := ledger.NewService(store, logger, ledger.Options{})
//	res, err := svc.IncrementQuantity(ctx, id, 40, actor)
//	var short *ledger.InsufficientMaterialsError
//	if errors.As(err, &short) {
//	    fmt.Println(ledger.Message(err))
//	}
package ledger
