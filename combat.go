package taverna

import (
	"fmt"
	"strings"
)

// LogAction is the kind of a combat log row.
type LogAction string

const (
	ActionDamage          LogAction = "DAMAGE"
	ActionHealing         LogAction = "HEALING"
	ActionConditionAdd    LogAction = "CONDITION_ADD"
	ActionConditionRemove LogAction = "CONDITION_REMOVE"
	ActionDeath           LogAction = "DEATH"
	ActionStabilize       LogAction = "STABILIZE"
	ActionAction          LogAction = "ACTION"
	ActionSpell           LogAction = "SPELL"
	ActionMovement        LogAction = "MOVEMENT"
	ActionNarration       LogAction = "NARRATION"
	ActionDiceRoll        LogAction = "DICE_ROLL"
	ActionSecretRoll      LogAction = "SECRET_ROLL"
	ActionRemoved         LogAction = "REMOVED"
)

// Valid reports whether a is a known action.
func (a LogAction) Valid() bool {
	switch a {
	case ActionDamage, ActionHealing, ActionConditionAdd, ActionConditionRemove,
		ActionDeath, ActionStabilize, ActionAction, ActionSpell, ActionMovement,
		ActionNarration, ActionDiceRoll, ActionSecretRoll, ActionRemoved:
		return true
	}
	return false
}

// Manual reports whether a DM may write a row of this action by hand. The
// rest are only produced as side effects of other updates.
func (a LogAction) Manual() bool {
	switch a {
	case ActionAction, ActionSpell, ActionMovement, ActionNarration, ActionStabilize:
		return true
	}
	return false
}

// HP is a current/max hit point pair.
type HP struct {
	Current int `json:"current" validate:"gte=-1000,lte=100000"`
	Max     int `json:"max" validate:"gte=0,lte=100000"`
}

// Down reports whether the creature is at or below zero.
func (h HP) Down() bool {
	return h.Current <= 0
}

// LogPayload is the structured side of a combat log row. Fields are only set
// when they apply to the action.
type LogPayload struct {
	OldHP     *int   `json:"oldHp,omitempty"`
	NewHP     *int   `json:"newHp,omitempty"`
	MaxHP     *int   `json:"maxHp,omitempty"`
	Delta     *int   `json:"delta,omitempty"`
	Condition string `json:"condition,omitempty"`
	UpdatedBy int64  `json:"updatedBy,omitempty"`

	Formula  string `json:"formula,omitempty"`
	Rolls    []int  `json:"rolls,omitempty"`
	Modifier *int   `json:"modifier,omitempty"`
	Total    *int   `json:"total,omitempty"`
	Label    string `json:"label,omitempty"`
}

// LogEvent is a combat log row before it is stored.
type LogEvent struct {
	Action  LogAction
	Actor   string
	Result  string
	Payload LogPayload
}

func intPtr(i int) *int {
	return &i
}

// HPEvents returns the log rows for a hit point change on name. A zero delta
// produces nothing. Dropping from above zero to zero or below adds a DEATH
// row and reports fell so the caller can announce it; climbing back above
// zero adds a STABILIZE row.
func HPEvents(name string, before, after HP, by int64) (events []LogEvent, fell bool) {
	delta := after.Current - before.Current
	if delta == 0 {
		return nil, false
	}

	payload := LogPayload{
		OldHP:     intPtr(before.Current),
		NewHP:     intPtr(after.Current),
		MaxHP:     intPtr(after.Max),
		Delta:     intPtr(delta),
		UpdatedBy: by,
	}

	if delta < 0 {
		events = append(events, LogEvent{
			Action:  ActionDamage,
			Actor:   name,
			Result:  fmt.Sprintf("%s took %d damage (%d/%d HP)", name, -delta, after.Current, after.Max),
			Payload: payload,
		})
	} else {
		events = append(events, LogEvent{
			Action:  ActionHealing,
			Actor:   name,
			Result:  fmt.Sprintf("%s healed %d HP (%d/%d HP)", name, delta, after.Current, after.Max),
			Payload: payload,
		})
	}

	switch {
	case before.Current > 0 && after.Current <= 0:
		fell = true
		events = append(events, LogEvent{
			Action:  ActionDeath,
			Actor:   name,
			Result:  fmt.Sprintf("%s has fallen unconscious", name),
			Payload: payload,
		})
	case before.Current <= 0 && after.Current > 0:
		events = append(events, LogEvent{
			Action:  ActionStabilize,
			Actor:   name,
			Result:  fmt.Sprintf("%s is back on their feet", name),
			Payload: payload,
		})
	}

	return events, fell
}

// ConditionEvents diffs two condition lists and returns one row per added
// and one row per removed condition. Additions come first, each group in
// list order.
func ConditionEvents(name string, before, after []string, by int64) []LogEvent {
	var events []LogEvent
	for _, c := range after {
		if !contains(before, c) {
			events = append(events, LogEvent{
				Action:  ActionConditionAdd,
				Actor:   name,
				Result:  fmt.Sprintf("%s is now %s", name, c),
				Payload: LogPayload{Condition: c, UpdatedBy: by},
			})
		}
	}
	for _, c := range before {
		if !contains(after, c) {
			events = append(events, LogEvent{
				Action:  ActionConditionRemove,
				Actor:   name,
				Result:  fmt.Sprintf("%s is no longer %s", name, c),
				Payload: LogPayload{Condition: c, UpdatedBy: by},
			})
		}
	}
	return events
}

// RemovedEvent is the row written when a combatant leaves the order.
func RemovedEvent(name string, by int64) LogEvent {
	return LogEvent{
		Action:  ActionRemoved,
		Actor:   name,
		Result:  fmt.Sprintf("%s was removed from initiative", name),
		Payload: LogPayload{UpdatedBy: by},
	}
}

// RollEvent is the row written for a dice roll. Private rolls are logged as
// SECRET_ROLL.
func RollEvent(actor string, res RollResult, label string, private bool, by int64) LogEvent {
	action := ActionDiceRoll
	if private {
		action = ActionSecretRoll
	}

	text := fmt.Sprintf("%s rolled %s: %d", actor, res.Formula, res.Total)
	if label != "" {
		text = fmt.Sprintf("%s rolled %s for %s: %d", actor, res.Formula, label, res.Total)
	}

	return LogEvent{
		Action: action,
		Actor:  actor,
		Result: text,
		Payload: LogPayload{
			Formula:   res.Formula,
			Rolls:     res.Rolls,
			Modifier:  intPtr(res.Modifier),
			Total:     intPtr(res.Total),
			Label:     label,
			UpdatedBy: by,
		},
	}
}

// NormalizeConditions trims names and drops blanks and duplicates, keeping
// first-seen order.
func NormalizeConditions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
