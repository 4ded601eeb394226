package taverna

import "sort"

// LogLine is a stored combat log row as the recap sees it.
type LogLine struct {
	Round   int
	Actor   string
	Action  LogAction
	Result  string
	Payload LogPayload
}

// Recap summarises a session's combat log.
type Recap struct {
	Entries      int               `json:"entries"`
	Rounds       int               `json:"rounds"`
	Actions      map[LogAction]int `json:"actions"`
	TotalDamage  int               `json:"totalDamage"`
	TotalHealing int               `json:"totalHealing"`
	Deaths       []string          `json:"deaths"`
	Rolls        int               `json:"rolls"`
	Narration    []string          `json:"narration"`
	// DamageTaken is per actor, sorted by amount then name.
	DamageTaken []ActorTotal `json:"damageTaken"`
}

// ActorTotal pairs a name with a number.
type ActorTotal struct {
	Actor string `json:"actor"`
	Total int    `json:"total"`
}

// BuildRecap aggregates lines in log order. SECRET_ROLL lines are skipped
// unless includeSecret is set.
func BuildRecap(lines []LogLine, includeSecret bool) Recap {
	rc := Recap{
		Actions:     map[LogAction]int{},
		Deaths:      []string{},
		Narration:   []string{},
		DamageTaken: []ActorTotal{},
	}
	taken := map[string]int{}

	for _, l := range lines {
		if l.Action == ActionSecretRoll && !includeSecret {
			continue
		}
		rc.Entries++
		rc.Actions[l.Action]++
		if l.Round > rc.Rounds {
			rc.Rounds = l.Round
		}

		switch l.Action {
		case ActionDamage:
			if l.Payload.Delta != nil {
				rc.TotalDamage -= *l.Payload.Delta
				taken[l.Actor] -= *l.Payload.Delta
			}
		case ActionHealing:
			if l.Payload.Delta != nil {
				rc.TotalHealing += *l.Payload.Delta
			}
		case ActionDeath:
			rc.Deaths = append(rc.Deaths, l.Actor)
		case ActionNarration:
			rc.Narration = append(rc.Narration, l.Result)
		case ActionDiceRoll, ActionSecretRoll:
			rc.Rolls++
		}
	}

	for actor, total := range taken {
		rc.DamageTaken = append(rc.DamageTaken, ActorTotal{Actor: actor, Total: total})
	}
	sort.Slice(rc.DamageTaken, func(i, j int) bool {
		a, b := rc.DamageTaken[i], rc.DamageTaken[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Actor < b.Actor
	})

	return rc
}
