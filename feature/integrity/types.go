package integrity

import (
	"time"

	"stock-ledger/core/ledger"
	"stock-ledger/feature/integrity/checks"
)

// Report is the result of one integrity scan over the ledger.
type Report struct {
	// GeneratedAt is when the snapshot was read.
	GeneratedAt time.Time `json:"generated_at"`

	// Entries is the number of entries across both registries.
	Entries int `json:"entries"`

	// Recipes is the number of stored recipes.
	Recipes int `json:"recipes"`

	Links        checks.LinkReport    `json:"links"`
	RecipeIssues []checks.RecipeIssue `json:"recipe_issues"`
	Summary      Summary              `json:"summary"`
}

// Summary provides aggregate counts for a report.
type Summary struct {
	// Issues is the total number of problems found.
	Issues int `json:"issues"`

	// Fixable counts the problems a fix plan can repair.
	Fixable int `json:"fixable"`
}

// Clean reports whether nothing was found.
func (r *Report) Clean() bool {
	return r.Summary.Issues == 0
}

// ActionType represents the kind of repair.
type ActionType string

const (
	// ActionResync sets the crafted side of a pair to the raw quantity.
	ActionResync ActionType = "resync"

	// ActionUnlink clears a link into the entry's own registry.
	ActionUnlink ActionType = "unlink"
)

// Action represents a planned repair.
type Action struct {
	Type ActionType `json:"type"`

	// Target is the entry the repair is applied to.
	Target ledger.Identity `json:"target"`

	// Mirror is the other side of the pair for resync actions.
	Mirror *ledger.Identity `json:"mirror,omitempty"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`
}

// Plan contains the repairs derived from a report.
type Plan struct {
	Actions []Action `json:"actions"`

	// Manual lists problems that need a person to decide.
	Manual []string `json:"manual"`
}

// Options controls whether a plan is executed.
type Options struct {
	// DryRun prevents execution of any repair if true.
	DryRun bool

	// Confirmed indicates the caller has confirmed the repairs.
	// If false, nothing is executed regardless of DryRun.
	Confirmed bool
}

// FixResult describes what ApplyFixes did.
type FixResult struct {
	Planned  int  `json:"planned"`
	Executed int  `json:"executed"`
	DryRun   bool `json:"dry_run"`
}
