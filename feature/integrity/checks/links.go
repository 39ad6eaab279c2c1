package checks

import (
	"sort"

	"stock-ledger/core/ledger"
)

// Snapshot is a full read of the ledger taken for one report.
type Snapshot struct {
	Raw     []ledger.Entry
	Crafted []ledger.Entry
	Recipes []ledger.Recipe
}

// Index maps every entry by identity.
func (s Snapshot) Index() map[ledger.Identity]ledger.Entry {
	out := make(map[ledger.Identity]ledger.Entry, len(s.Raw)+len(s.Crafted))
	for _, e := range s.Raw {
		out[e.Identity] = e
	}
	for _, e := range s.Crafted {
		out[e.Identity] = e
	}
	return out
}

// Divergence is a reciprocal pair whose quantities differ.
type Divergence struct {
	Raw             ledger.Identity `json:"raw"`
	Crafted         ledger.Identity `json:"crafted"`
	RawQuantity     int             `json:"raw_quantity"`
	CraftedQuantity int             `json:"crafted_quantity"`
}

// LinkIssue is an entry whose link is broken.
type LinkIssue struct {
	Entry  ledger.Identity `json:"entry"`
	Target ledger.Identity `json:"target"`
	// Reason is one of dangling, not_reciprocal or same_registry.
	Reason string `json:"reason"`
}

const (
	ReasonDangling      = "dangling"
	ReasonNotReciprocal = "not_reciprocal"
	ReasonSameRegistry  = "same_registry"
)

// LinkReport collects every link problem in a snapshot.
type LinkReport struct {
	Pairs                 int               `json:"pairs"`
	Diverged              []Divergence      `json:"diverged"`
	Broken                []LinkIssue       `json:"broken"`
	UnlinkedIntermediates []ledger.Identity `json:"unlinked_intermediates"`
}

// Count returns the number of problems found.
func (r LinkReport) Count() int {
	return len(r.Diverged) + len(r.Broken) + len(r.UnlinkedIntermediates)
}

// CheckLinks walks every link. Pairs are counted once, from the raw side.
func CheckLinks(snap Snapshot) LinkReport {
	index := snap.Index()
	report := LinkReport{
		Diverged:              []Divergence{},
		Broken:                []LinkIssue{},
		UnlinkedIntermediates: []ledger.Identity{},
	}

	for _, entries := range [][]ledger.Entry{snap.Raw, snap.Crafted} {
		for _, e := range entries {
			target, linked := e.Mirror()
			if !linked {
				if e.Kind == ledger.KindIntermediate {
					report.UnlinkedIntermediates = append(report.UnlinkedIntermediates, e.Identity)
				}
				continue
			}
			if target.Registry == e.Registry {
				report.Broken = append(report.Broken, LinkIssue{Entry: e.Identity, Target: target, Reason: ReasonSameRegistry})
				continue
			}

			mirror, ok := index[target]
			if !ok {
				report.Broken = append(report.Broken, LinkIssue{Entry: e.Identity, Target: target, Reason: ReasonDangling})
				continue
			}
			back, backLinked := mirror.Mirror()
			if !backLinked || back != e.Identity {
				report.Broken = append(report.Broken, LinkIssue{Entry: e.Identity, Target: target, Reason: ReasonNotReciprocal})
				continue
			}

			if e.Registry != ledger.RegistryRaw {
				continue
			}
			report.Pairs++
			if e.Quantity != mirror.Quantity {
				report.Diverged = append(report.Diverged, Divergence{
					Raw:             e.Identity,
					Crafted:         mirror.Identity,
					RawQuantity:     e.Quantity,
					CraftedQuantity: mirror.Quantity,
				})
			}
		}
	}

	sort.Slice(report.Diverged, func(i, j int) bool {
		return report.Diverged[i].Raw.String() < report.Diverged[j].Raw.String()
	})
	sort.Slice(report.Broken, func(i, j int) bool {
		return report.Broken[i].Entry.String() < report.Broken[j].Entry.String()
	})
	return report
}
