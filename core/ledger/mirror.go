package ledger

import "fmt"

// Synchronizer keeps the two entries of a mirror pair converged.
type Synchronizer struct {
	clock Clock
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(clock Clock) *Synchronizer {
	return &Synchronizer{clock: clock}
}

// PlanMirror sets the mirror of primary to newQty. Quantities are mirrored
// with a set so both sides converge instead of accumulating drift. An unlinked
// primary or a mirror missing from snapshot yields an empty plan.
func (s *Synchronizer) PlanMirror(primary Entry, snapshot map[Identity]Entry, newQty int, actor Actor) Plan {
	var plan Plan
	mirrorID, ok := primary.Mirror()
	if !ok {
		return plan
	}
	if _, exists := snapshot[mirrorID]; !exists {
		return plan
	}
	plan.add(
		SetQuantity(mirrorID, newQty),
		newEvent(s.clock, mirrorID, ActionMirrorSynced,
			fmt.Sprintf("set to %d from %s", newQty, primary.Identity), actor),
	)
	return plan
}

// PlanMirrorTagMembership returns the tag op that applies the same membership
// change to the mirror of primary, under the same tag name, in the mirror's
// registry. The store creates the tag with the primary tag's color when the
// mirror registry does not have it yet.
func (s *Synchronizer) PlanMirrorTagMembership(primary Entry, tag Tag, added bool, snapshot map[Identity]Entry) []TagOp {
	mirrorID, ok := primary.Mirror()
	if !ok {
		return nil
	}
	if _, exists := snapshot[mirrorID]; !exists {
		return nil
	}
	return []TagOp{{
		Registry: mirrorID.Registry,
		Tag:      tag.Name,
		Color:    tag.Color,
		Member:   mirrorID,
		Added:    added,
	}}
}
