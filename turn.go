package taverna

import "sort"

// Combatant is one slot in the initiative order.
type Combatant struct {
	ID         int64
	Name       string
	Initiative int
	IsActive   bool
}

// SortInitiative orders combatants by initiative, highest first. Equal
// initiative keeps insertion order, which is ascending ID.
func SortInitiative(c []Combatant) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Initiative != c[j].Initiative {
			return c[i].Initiative > c[j].Initiative
		}
		return c[i].ID < c[j].ID
	})
}

// Turn is the outcome of advancing initiative.
type Turn struct {
	// Index into the sorted order of the combatant whose turn it is now.
	Index int
	Round int
	// Wrapped is true when the order went past the last combatant.
	Wrapped bool
}

// AdvanceTurn moves the active flag to the next combatant of an already
// sorted order and returns the new turn. It reports false on an empty order.
//
// The round goes up by one when the order wraps from the last combatant back
// to the first. The very first activation of a session still on round 0 sets
// the round to 1 instead. Activating the first combatant when nothing was
// active on a later round leaves the round alone.
func AdvanceTurn(order []Combatant, round int) (Turn, bool) {
	if len(order) == 0 {
		return Turn{Round: round}, false
	}

	current := -1
	for i := range order {
		if order[i].IsActive && current == -1 {
			current = i
		}
		order[i].IsActive = false
	}

	next := (current + 1) % len(order)
	order[next].IsActive = true

	t := Turn{Index: next, Round: round}
	switch {
	case next == 0 && current != -1:
		t.Round = round + 1
		t.Wrapped = true
	case current == -1 && round == 0:
		t.Round = 1
	}
	return t, true
}
