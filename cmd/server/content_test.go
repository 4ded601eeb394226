package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icco/taverna"
)

func strp(s string) *string {
	return &s
}

func boolp(b bool) *bool {
	return &b
}

func TestQuestBoard(t *testing.T) {
	tb := setupTable(t)
	path := tb.path("/campaigns/%d/quests", tb.campaign.ID)

	var open, secret Quest
	mustCall(t, tb.srv, tb.dm, "POST", path, QuestRequest{Title: strp("Find the caravan"), Reward: strp("200 gp")}, &open, http.StatusCreated)
	assert.Equal(t, taverna.QuestOpen, open.Status)
	mustCall(t, tb.srv, tb.dm, "POST", path, QuestRequest{Title: strp("Betray the baron"), Hidden: boolp(true)}, &secret, http.StatusCreated)

	var list []Quest
	mustCall(t, tb.srv, tb.player, "GET", path, nil, &list, http.StatusOK)
	require.Len(t, list, 1)
	assert.Equal(t, open.ID, list[0].ID)
	mustCall(t, tb.srv, tb.dm, "GET", path, nil, &list, http.StatusOK)
	assert.Len(t, list, 2)

	code, _ := call(t, tb.srv, tb.player, "POST", path, QuestRequest{Title: strp("My side quest")}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, tb.srv, tb.dm, "POST", path, QuestRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	done := taverna.QuestCompleted
	var got Quest
	mustCall(t, tb.srv, tb.dm, "PATCH", tb.path("/quests/%d", open.ID), QuestRequest{Status: &done}, &got, http.StatusOK)
	assert.Equal(t, taverna.QuestCompleted, got.Status)
	assert.Equal(t, "200 gp", got.Reward)

	bogus := taverna.QuestStatus("ABANDONED")
	code, _ = call(t, tb.srv, tb.dm, "PATCH", tb.path("/quests/%d", open.ID), QuestRequest{Status: &bogus}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, tb.srv, tb.player, "DELETE", tb.path("/quests/%d", open.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	mustCall(t, tb.srv, tb.dm, "DELETE", tb.path("/quests/%d", secret.ID), nil, nil, http.StatusOK)
	mustCall(t, tb.srv, tb.dm, "GET", path, nil, &list, http.StatusOK)
	assert.Len(t, list, 1)
}

func TestLore(t *testing.T) {
	tb := setupTable(t)
	path := tb.path("/campaigns/%d/lore", tb.campaign.ID)

	var tower, plot LoreEntry
	mustCall(t, tb.srv, tb.dm, "POST", path, LoreRequest{
		Title:    strp("The Pale Tower"),
		Category: strp(" Locations "),
		Body:     strp(`<p>Built by <b>Vess</b>.</p><script>steal()</script>`),
	}, &tower, http.StatusCreated)
	assert.Equal(t, "locations", tower.Category)
	assert.Equal(t, `<p>Built by <b>Vess</b>.</p>`, tower.Body)

	mustCall(t, tb.srv, tb.dm, "POST", path, LoreRequest{Title: strp("The Baron's Plan"), Category: strp("plots"), DMOnly: boolp(true)}, &plot, http.StatusCreated)
	mustCall(t, tb.srv, tb.dm, "POST", path, LoreRequest{Title: strp("Ashford"), Category: strp("locations")}, nil, http.StatusCreated)

	var list []LoreEntry
	mustCall(t, tb.srv, tb.player, "GET", path, nil, &list, http.StatusOK)
	assert.Len(t, list, 2)
	mustCall(t, tb.srv, tb.dm, "GET", path, nil, &list, http.StatusOK)
	assert.Len(t, list, 3)

	mustCall(t, tb.srv, tb.player, "GET", path+"?category=LOCATIONS", nil, &list, http.StatusOK)
	require.Len(t, list, 2)
	assert.Equal(t, "Ashford", list[0].Title, "sorted by title")

	code, _ := call(t, tb.srv, tb.player, "GET", tb.path("/lore/%d", plot.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, code, "dm-only entries read as missing")
	mustCall(t, tb.srv, tb.dm, "GET", tb.path("/lore/%d", plot.ID), nil, nil, http.StatusOK)

	code, _ = call(t, tb.srv, tb.player, "PATCH", tb.path("/lore/%d", tower.ID), LoreRequest{Title: strp("Mine now")}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, tb.srv, tb.player, "POST", path, LoreRequest{Title: strp("Fan theory")}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var got LoreEntry
	mustCall(t, tb.srv, tb.dm, "PATCH", tb.path("/lore/%d", plot.ID), LoreRequest{DMOnly: boolp(false)}, &got, http.StatusOK)
	assert.False(t, got.DMOnly)
	mustCall(t, tb.srv, tb.player, "GET", tb.path("/lore/%d", plot.ID), nil, nil, http.StatusOK)

	mustCall(t, tb.srv, tb.dm, "DELETE", tb.path("/lore/%d", tower.ID), nil, nil, http.StatusOK)
	code, _ = call(t, tb.srv, tb.dm, "GET", tb.path("/lore/%d", tower.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCharacterSheet(t *testing.T) {
	tb := setupTable(t)
	path := tb.path("/campaigns/%d/characters", tb.campaign.ID)

	var c Character
	mustCall(t, tb.srv, tb.player, "POST", path, CharacterRequest{
		Name:  strp("Elowen"),
		Sheet: json.RawMessage(`{"class":"Ranger","race":"Elf","level":3}`),
	}, &c, http.StatusCreated)
	assert.Equal(t, tb.player.ID, c.UserID)
	sheet := c.Sheet.Data()
	assert.Equal(t, "Ranger", sheet.Class)
	assert.Equal(t, 3, sheet.Level)
	assert.Equal(t, taverna.DefaultAbilityScores(), sheet.Abilities)
	assert.NotNil(t, sheet.Inventory)

	var got Character
	mustCall(t, tb.srv, tb.player, "PATCH", tb.path("/characters/%d", c.ID), CharacterRequest{
		Sheet: json.RawMessage(`{"hp":{"current":5,"max":24},"inventory":[{"name":"Rope","quantity":1}]}`),
	}, &got, http.StatusOK)
	sheet = got.Sheet.Data()
	assert.Equal(t, "Ranger", sheet.Class, "fields left out are kept")
	assert.Equal(t, taverna.HP{Current: 5, Max: 24}, sheet.HP)
	require.Len(t, sheet.Inventory, 1)
	assert.Equal(t, "Rope", sheet.Inventory[0].Name)

	code, _ := call(t, tb.srv, tb.player, "PATCH", tb.path("/characters/%d", c.ID), CharacterRequest{Sheet: json.RawMessage(`{"level":0}`)}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, tb.srv, tb.player, "POST", path, CharacterRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// the DM may edit anyone's character; other players may only look
	mustCall(t, tb.srv, tb.dm, "PATCH", tb.path("/characters/%d", c.ID), CharacterRequest{Name: strp("Elowen the Bold")}, &got, http.StatusOK)
	assert.Equal(t, "Elowen the Bold", got.Name)

	rival := createTestUser(t, tb.db, "rival", taverna.PlatformUser)
	mustCall(t, tb.srv, rival, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: tb.campaign.InviteCode}, nil, http.StatusOK)
	mustCall(t, tb.srv, rival, "GET", tb.path("/characters/%d", c.ID), nil, nil, http.StatusOK)
	code, _ = call(t, tb.srv, rival, "PATCH", tb.path("/characters/%d", c.ID), CharacterRequest{Name: strp("Loser")}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, tb.srv, rival, "DELETE", tb.path("/characters/%d", c.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var list []Character
	mustCall(t, tb.srv, rival, "GET", path, nil, &list, http.StatusOK)
	assert.Len(t, list, 1)

	mustCall(t, tb.srv, tb.player, "DELETE", tb.path("/characters/%d", c.ID), nil, nil, http.StatusOK)
	mustCall(t, tb.srv, rival, "GET", path, nil, &list, http.StatusOK)
	assert.Empty(t, list)
}
