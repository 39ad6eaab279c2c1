package ledger

import "context"

// EntryReader reads entries by identity. Missing identities are simply absent
// from the returned map.
type EntryReader interface {
	GetEntries(ctx context.Context, ids []Identity) (map[Identity]Entry, error)
}

// BatchWriter applies UpdateOps in submission order without a cross-record
// transaction.
type BatchWriter interface {
	// BulkApply returns one flag per op. An op against a missing entry is
	// reported as not applied. A transient failure returns the flags gathered
	// so far together with an error wrapping ErrStoreUnavailable.
	//
	// Increments must be atomic per record and never drive a quantity below zero.
	BulkApply(ctx context.Context, ops []UpdateOp) (BulkResult, error)
}

// HistoryWriter appends to the history log. Retention trimming is the
// implementation's concern.
type HistoryWriter interface {
	AppendHistory(ctx context.Context, events []HistoryEvent) error
}

// RecipeSource looks up recipes by result entry. A nil recipe and nil error
// means the entry has no recipe.
type RecipeSource interface {
	GetRecipe(ctx context.Context, result Identity) (*Recipe, error)
}

// Catalog holds the structural operations. Each call updates both ends of a
// mirror pair in one store call.
type Catalog interface {
	RecipeSource

	// CreateEntry fails with ErrAlreadyExists. When e links to an existing
	// entry that has no link of its own, the reciprocal link is set too.
	CreateEntry(ctx context.Context, e Entry) error
	// DeleteEntry cascades the recipe (crafted), tag memberships and clears
	// links pointing at the entry. It reports whether anything was deleted.
	DeleteEntry(ctx context.Context, id Identity) (bool, error)
	// RenameEntry fails with ErrNotFound or ErrNameTaken and rewrites the
	// recipe result, material lines, tag memberships and reciprocal links.
	RenameEntry(ctx context.Context, id Identity, newName string) error
	// SetLink points id at target (nil clears it).
	SetLink(ctx context.Context, id Identity, target *Identity) error
	// Relink pairs a and b. Links from former partners of either end are
	// cleared in the same call. Fails with ErrNotFound if either is missing.
	Relink(ctx context.Context, a, b Identity) error

	SaveRecipe(ctx context.Context, r Recipe) error

	GetTag(ctx context.Context, registry Registry, name string) (*Tag, error)
	CreateTag(ctx context.Context, t Tag) error
	DeleteTag(ctx context.Context, registry Registry, name string) (bool, error)
	ApplyTagOps(ctx context.Context, ops []TagOp) error
}

// Lister supports read-side scans used by reports.
type Lister interface {
	ListEntries(ctx context.Context, registry Registry) ([]Entry, error)
	ListRecipes(ctx context.Context) ([]Recipe, error)
	ListTags(ctx context.Context, registry Registry) ([]Tag, error)
	// ListHistory returns the newest events first.
	ListHistory(ctx context.Context, limit int) ([]HistoryEvent, error)
}

// Store is everything the engine consumes from persistence.
type Store interface {
	EntryReader
	BatchWriter
	HistoryWriter
	Catalog
	Lister
}

// BulkResult carries the per-op outcome of BulkApply.
type BulkResult struct {
	Applied []bool
}

// AppliedCount returns how many ops applied.
func (r BulkResult) AppliedCount() int {
	n := 0
	for _, ok := range r.Applied {
		if ok {
			n++
		}
	}
	return n
}

// OK reports whether op i applied.
func (r BulkResult) OK(i int) bool {
	return i < len(r.Applied) && r.Applied[i]
}

// getEntry reads a single entry.
func getEntry(ctx context.Context, r EntryReader, id Identity) (Entry, bool, error) {
	entries, err := r.GetEntries(ctx, []Identity{id})
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := entries[id]
	return e, ok, nil
}
