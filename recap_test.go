package taverna

import "testing"

func TestBuildRecap(t *testing.T) {
	d := func(i int) *int { return &i }

	lines := []LogLine{
		{Round: 1, Actor: "Goblin", Action: ActionDamage, Payload: LogPayload{Delta: d(-5)}},
		{Round: 1, Actor: "Ana", Action: ActionDamage, Payload: LogPayload{Delta: d(-3)}},
		{Round: 2, Actor: "Goblin", Action: ActionDamage, Payload: LogPayload{Delta: d(-4)}},
		{Round: 2, Actor: "Goblin", Action: ActionDeath},
		{Round: 2, Actor: "Ana", Action: ActionHealing, Payload: LogPayload{Delta: d(2)}},
		{Round: 3, Actor: "DM", Action: ActionNarration, Result: "The cave falls silent."},
		{Round: 3, Actor: "DM", Action: ActionSecretRoll},
		{Round: 3, Actor: "Ana", Action: ActionDiceRoll},
	}

	rc := BuildRecap(lines, false)
	if rc.Entries != 7 {
		t.Errorf("entries = %d, want 7", rc.Entries)
	}
	if rc.Rounds != 3 {
		t.Errorf("rounds = %d", rc.Rounds)
	}
	if rc.TotalDamage != 12 || rc.TotalHealing != 2 {
		t.Errorf("damage %d healing %d", rc.TotalDamage, rc.TotalHealing)
	}
	if len(rc.Deaths) != 1 || rc.Deaths[0] != "Goblin" {
		t.Errorf("deaths = %v", rc.Deaths)
	}
	if rc.Rolls != 1 {
		t.Errorf("rolls = %d, secret roll should be hidden", rc.Rolls)
	}
	if len(rc.Narration) != 1 {
		t.Errorf("narration = %v", rc.Narration)
	}
	if len(rc.DamageTaken) != 2 || rc.DamageTaken[0].Actor != "Goblin" || rc.DamageTaken[0].Total != 9 {
		t.Errorf("damage taken = %+v", rc.DamageTaken)
	}

	if dm := BuildRecap(lines, true); dm.Rolls != 2 || dm.Actions[ActionSecretRoll] != 1 {
		t.Errorf("dm recap rolls = %d", dm.Rolls)
	}
}

func TestBuildRecapEmpty(t *testing.T) {
	rc := BuildRecap(nil, true)
	if rc.Entries != 0 || rc.Deaths == nil || rc.Narration == nil {
		t.Errorf("unexpected empty recap %+v", rc)
	}
}
