package models

import (
	"time"

	"stock-ledger/core/ledger"
)

// EntryRow is one row of the ledger_entries table. The linked_* columns are
// empty when the entry has no mirror.
type EntryRow struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Registry       string    `gorm:"column:registry;size:16;not null;uniqueIndex:idx_entry_identity,priority:1"`
	Category       string    `gorm:"column:category;size:128;not null;uniqueIndex:idx_entry_identity,priority:2"`
	Name           string    `gorm:"column:name;size:128;not null;uniqueIndex:idx_entry_identity,priority:3"`
	Quantity       int       `gorm:"column:quantity;not null;default:0"`
	Required       int       `gorm:"column:required;not null;default:1"`
	Kind           string    `gorm:"column:kind;size:16;not null;default:material"`
	LinkedRegistry string    `gorm:"column:linked_registry;size:16;index:idx_entry_link,priority:1"`
	LinkedCategory string    `gorm:"column:linked_category;size:128;index:idx_entry_link,priority:2"`
	LinkedName     string    `gorm:"column:linked_name;size:128;index:idx_entry_link,priority:3"`
	Emoji          string    `gorm:"column:emoji;size:32"`
	SortOrder      int       `gorm:"column:sort_order;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (EntryRow) TableName() string {
	return "ledger_entries"
}

// NewEntryRow converts a domain entry.
func NewEntryRow(e ledger.Entry) EntryRow {
	row := EntryRow{
		Registry:  string(e.Registry),
		Category:  e.Category,
		Name:      e.Name,
		Quantity:  e.Quantity,
		Required:  e.Required,
		Kind:      string(e.Kind),
		Emoji:     e.Emoji,
		SortOrder: e.Order,
	}
	row.SetLink(e.LinkedItem)
	return row
}

// SetLink stores target in the linked_* columns; nil clears them.
func (r *EntryRow) SetLink(target *ledger.Identity) {
	if target == nil {
		r.LinkedRegistry, r.LinkedCategory, r.LinkedName = "", "", ""
		return
	}
	r.LinkedRegistry = string(target.Registry)
	r.LinkedCategory = target.Category
	r.LinkedName = target.Name
}

// Identity returns the row's ledger identity.
func (r EntryRow) Identity() ledger.Identity {
	return ledger.ID(ledger.Registry(r.Registry), r.Category, r.Name)
}

// ToEntry converts the row to a domain entry.
func (r EntryRow) ToEntry() ledger.Entry {
	e := ledger.Entry{
		Identity: r.Identity(),
		Quantity: r.Quantity,
		Required: r.Required,
		Kind:     ledger.Kind(r.Kind),
		Emoji:    r.Emoji,
		Order:    r.SortOrder,
	}
	if r.LinkedRegistry != "" {
		link := ledger.ID(ledger.Registry(r.LinkedRegistry), r.LinkedCategory, r.LinkedName)
		e.LinkedItem = &link
	}
	return e
}

// RecipeRow is a crafted entry's recipe header.
type RecipeRow struct {
	ID         uint          `gorm:"column:id;primaryKey;autoIncrement"`
	Category   string        `gorm:"column:category;size:128;not null;uniqueIndex:idx_recipe_result,priority:1"`
	ResultName string        `gorm:"column:result_name;size:128;not null;uniqueIndex:idx_recipe_result,priority:2"`
	Materials  []MaterialRow `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE"`
	UpdatedAt  time.Time     `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (RecipeRow) TableName() string {
	return "ledger_recipes"
}

// MaterialRow is one material line of a recipe.
type MaterialRow struct {
	ID              uint   `gorm:"column:id;primaryKey;autoIncrement"`
	RecipeID        uint   `gorm:"column:recipe_id;not null;index"`
	Category        string `gorm:"column:category;size:128;not null;index:idx_material_ref,priority:1"`
	Name            string `gorm:"column:name;size:128;not null;index:idx_material_ref,priority:2"`
	QuantityPerUnit int    `gorm:"column:quantity_per_unit;not null"`
	Position        int    `gorm:"column:position;not null;default:0"`
}

// TableName overrides the table name.
func (MaterialRow) TableName() string {
	return "ledger_recipe_materials"
}

// NewRecipeRow converts a domain recipe.
func NewRecipeRow(r ledger.Recipe) RecipeRow {
	row := RecipeRow{Category: r.Category, ResultName: r.ResultName}
	for i, m := range r.Materials {
		row.Materials = append(row.Materials, MaterialRow{
			Category:        m.Category,
			Name:            m.Name,
			QuantityPerUnit: m.QuantityPerUnit,
			Position:        i,
		})
	}
	return row
}

// ToRecipe converts the row to a domain recipe. Materials must be loaded in
// position order.
func (r RecipeRow) ToRecipe() ledger.Recipe {
	out := ledger.Recipe{Category: r.Category, ResultName: r.ResultName}
	for _, m := range r.Materials {
		out.Materials = append(out.Materials, ledger.MaterialLine{
			Category:        m.Category,
			Name:            m.Name,
			QuantityPerUnit: m.QuantityPerUnit,
		})
	}
	return out
}

// TagRow is a tag of one registry.
type TagRow struct {
	ID       uint           `gorm:"column:id;primaryKey;autoIncrement"`
	Registry string         `gorm:"column:registry;size:16;not null;uniqueIndex:idx_tag_name,priority:1"`
	Name     string         `gorm:"column:name;size:128;not null;uniqueIndex:idx_tag_name,priority:2"`
	Color    string         `gorm:"column:color;size:32"`
	Members  []TagMemberRow `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name.
func (TagRow) TableName() string {
	return "ledger_tags"
}

// ToTag converts the row to a domain tag.
func (r TagRow) ToTag() ledger.Tag {
	t := ledger.Tag{Registry: ledger.Registry(r.Registry), Name: r.Name, Color: r.Color}
	for _, m := range r.Members {
		t.Members = append(t.Members, m.Identity())
	}
	return t
}

// TagMemberRow is one entry's membership in a tag.
type TagMemberRow struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement"`
	TagID    uint   `gorm:"column:tag_id;not null;uniqueIndex:idx_tag_member,priority:1"`
	Registry string `gorm:"column:registry;size:16;not null;uniqueIndex:idx_tag_member,priority:2"`
	Category string `gorm:"column:category;size:128;not null;uniqueIndex:idx_tag_member,priority:3"`
	Name     string `gorm:"column:name;size:128;not null;uniqueIndex:idx_tag_member,priority:4"`
}

// TableName overrides the table name.
func (TagMemberRow) TableName() string {
	return "ledger_tag_members"
}

// Identity returns the member's ledger identity.
func (r TagMemberRow) Identity() ledger.Identity {
	return ledger.ID(ledger.Registry(r.Registry), r.Category, r.Name)
}

// HistoryRow is one history event. ID orders events by insertion.
type HistoryRow struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID   string    `gorm:"column:event_id;size:36;not null;uniqueIndex"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index"`
	Registry  string    `gorm:"column:registry;size:16"`
	Category  string    `gorm:"column:category;size:128"`
	Name      string    `gorm:"column:name;size:128"`
	Action    string    `gorm:"column:action;size:32;not null"`
	Details   string    `gorm:"column:details;size:512"`
	UserName  string    `gorm:"column:user_name;size:128"`
}

// TableName overrides the table name.
func (HistoryRow) TableName() string {
	return "ledger_history"
}

// NewHistoryRow converts a domain event.
func NewHistoryRow(ev ledger.HistoryEvent) HistoryRow {
	return HistoryRow{
		EventID:   ev.ID,
		Timestamp: ev.Timestamp,
		Registry:  string(ev.Registry),
		Category:  ev.Category,
		Name:      ev.Name,
		Action:    string(ev.Action),
		Details:   ev.Details,
		UserName:  ev.UserName,
	}
}

// ToEvent converts the row to a domain event.
func (r HistoryRow) ToEvent() ledger.HistoryEvent {
	return ledger.HistoryEvent{
		ID:        r.EventID,
		Timestamp: r.Timestamp,
		Identity:  ledger.ID(ledger.Registry(r.Registry), r.Category, r.Name),
		Action:    ledger.Action(r.Action),
		Details:   r.Details,
		UserName:  r.UserName,
	}
}

// All lists every table model, in migration order.
func All() []any {
	return []any{&EntryRow{}, &RecipeRow{}, &MaterialRow{}, &TagRow{}, &TagMemberRow{}, &HistoryRow{}}
}
