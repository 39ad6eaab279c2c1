package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Registry names one of the two entry books.
type Registry string

const (
	// RegistryRaw holds collected materials.
	RegistryRaw Registry = "raw"
	// RegistryCrafted holds crafted results.
	RegistryCrafted Registry = "crafted"
)

// Valid reports whether r is a known registry.
func (r Registry) Valid() bool {
	return r == RegistryRaw || r == RegistryCrafted
}

// Opposite returns the other registry. Mirror pairs always span both.
func (r Registry) Opposite() Registry {
	if r == RegistryRaw {
		return RegistryCrafted
	}
	return RegistryRaw
}

// Kind classifies an entry's role in crafting.
type Kind string

const (
	KindMaterial     Kind = "material"
	KindIntermediate Kind = "intermediate"
	KindFinal        Kind = "final"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMaterial, KindIntermediate, KindFinal:
		return true
	default:
		return false
	}
}

// Identity addresses an entry. It is unique across the ledger.
type Identity struct {
	Registry Registry `json:"registry"`
	Category string   `json:"category"`
	Name     string   `json:"name"`
}

// ID is a shorthand constructor.
func ID(registry Registry, category, name string) Identity {
	return Identity{Registry: registry, Category: category, Name: name}
}

// String renders the identity as registry/category/name.
func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s", id.Registry, id.Category, id.Name)
}

// Validate checks that every part of the identity is set.
func (id Identity) Validate() error {
	if !id.Registry.Valid() {
		return fmt.Errorf("%w: unknown registry %q", ErrInvalidInput, id.Registry)
	}
	if strings.TrimSpace(id.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if strings.TrimSpace(id.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return nil
}

// Renamed returns a copy of the identity carrying a new name.
func (id Identity) Renamed(name string) Identity {
	id.Name = name
	return id
}

// Entry is one tracked quantity record.
type Entry struct {
	Identity

	Quantity int  `json:"quantity"`
	Required int  `json:"required"`
	Kind     Kind `json:"kind"`

	// LinkedItem points at the mirror entry in the opposite registry.
	LinkedItem *Identity `json:"linked_item,omitempty"`

	// Display metadata, not used by the engine.
	Emoji string `json:"emoji,omitempty"`
	Order int    `json:"order"`
}

// IsComplete reports whether the entry reached its target.
func (e Entry) IsComplete() bool {
	return e.Quantity >= e.Required
}

// Mirror returns the linked identity, if any.
func (e Entry) Mirror() (Identity, bool) {
	if e.LinkedItem == nil {
		return Identity{}, false
	}
	return *e.LinkedItem, true
}

// MaterialLine is one ingredient of a recipe.
type MaterialLine struct {
	Category        string `json:"category"`
	Name            string `json:"name"`
	QuantityPerUnit int    `json:"quantity_per_unit"`
}

// Identity returns the raw entry the line consumes.
func (m MaterialLine) Identity() Identity {
	return ID(RegistryRaw, m.Category, m.Name)
}

// Recipe lists the materials needed for one unit of a crafted entry.
type Recipe struct {
	Category   string         `json:"category"`
	ResultName string         `json:"result_name"`
	Materials  []MaterialLine `json:"materials"`
}

// Result returns the crafted entry the recipe produces.
func (r Recipe) Result() Identity {
	return ID(RegistryCrafted, r.Category, r.ResultName)
}

// Operation is the kind of change an UpdateOp carries.
type Operation string

const (
	OpIncrement   Operation = "increment"
	OpSetQuantity Operation = "set_quantity"
	OpSetRequired Operation = "set_required"
)

// UpdateOp is one write against a single entry.
type UpdateOp struct {
	Identity
	Operation Operation `json:"operation"`
	Amount    int       `json:"amount"`
}

// Increment builds an increment op.
func Increment(id Identity, amount int) UpdateOp {
	return UpdateOp{Identity: id, Operation: OpIncrement, Amount: amount}
}

// SetQuantity builds an absolute quantity op.
func SetQuantity(id Identity, amount int) UpdateOp {
	return UpdateOp{Identity: id, Operation: OpSetQuantity, Amount: amount}
}

// SetRequired builds a target op.
func SetRequired(id Identity, amount int) UpdateOp {
	return UpdateOp{Identity: id, Operation: OpSetRequired, Amount: amount}
}

// Action labels a history event.
type Action string

const (
	ActionEntryAdded       Action = "entry_added"
	ActionEntryRemoved     Action = "entry_removed"
	ActionEntryRenamed     Action = "entry_renamed"
	ActionQuantitySet      Action = "quantity_set"
	ActionQuantityAdded    Action = "quantity_added"
	ActionQuantityRemoved  Action = "quantity_removed"
	ActionRequiredSet      Action = "required_set"
	ActionMaterialConsumed Action = "material_consumed"
	ActionMaterialReturned Action = "material_returned"
	ActionMirrorSynced     Action = "mirror_synced"
	ActionRecipeSaved      Action = "recipe_saved"
	ActionTagAdded         Action = "tag_added"
	ActionTagRemoved       Action = "tag_removed"
)

// HistoryEvent is an append-only log line.
type HistoryEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Identity
	Action   Action `json:"action"`
	Details  string `json:"details"`
	UserName string `json:"user_name"`
}

// Actor identifies the user behind a mutation.
type Actor struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// Tag groups entries of one registry.
type Tag struct {
	Registry Registry   `json:"registry"`
	Name     string     `json:"name"`
	Color    string     `json:"color"`
	Members  []Identity `json:"members"`
}

// Has reports whether id is a member.
func (t Tag) Has(id Identity) bool {
	for _, m := range t.Members {
		if m == id {
			return true
		}
	}
	return false
}

// TagOp adds or removes one member. Stores create the tag with Color when it
// does not exist yet and Added is true.
type TagOp struct {
	Registry Registry `json:"registry"`
	Tag      string   `json:"tag"`
	Color    string   `json:"color"`
	Member   Identity `json:"member"`
	Added    bool     `json:"added"`
}

// PendingTagSelection is what a multi-step front-end flow accumulates before
// submitting it in one call.
type PendingTagSelection struct {
	Actor   Actor      `json:"actor"`
	Tag     string     `json:"tag"`
	Entries []Identity `json:"entries"`
	Remove  bool       `json:"remove"`
}
