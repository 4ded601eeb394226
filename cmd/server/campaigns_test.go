package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icco/taverna"
)

func TestCreateCampaign(t *testing.T) {
	srv, db := setupTestServer(t)
	dm := createTestUser(t, db, "dm", taverna.PlatformUser)

	var c CampaignSummary
	mustCall(t, srv, dm, "POST", "/campaigns", CreateCampaignRequest{Name: "Storm King's Thunder"}, &c, http.StatusCreated)
	assert.Equal(t, dm.ID, c.DMID)
	assert.Equal(t, taverna.RoleDM, c.Role)
	assert.Equal(t, int64(1), c.MemberCount)
	assert.Equal(t, taverna.DefaultMaxPlayers, c.MaxPlayers)
	assert.Equal(t, taverna.CampaignActive, c.Status)
	assert.NotEmpty(t, c.InviteCode)

	var list []CampaignSummary
	mustCall(t, srv, dm, "GET", "/campaigns", nil, &list, http.StatusOK)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	code, _ := call(t, srv, dm, "POST", "/campaigns", CreateCampaignRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListCampaigns(t *testing.T) {
	tb := setupTable(t)

	var own CampaignSummary
	mustCall(t, tb.srv, tb.player, "POST", "/campaigns", CreateCampaignRequest{Name: "Elowen's One-Shot"}, &own, http.StatusCreated)
	mustCall(t, tb.srv, tb.dm, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: own.InviteCode}, nil, http.StatusOK)
	setupCampaign(t, tb, "Solo Prep")

	var list []CampaignSummary
	mustCall(t, tb.srv, tb.player, "GET", "/campaigns", nil, &list, http.StatusOK)
	require.Len(t, list, 2)

	assert.Equal(t, tb.campaign.ID, list[0].ID, "oldest membership first")
	assert.Equal(t, taverna.RolePlayer, list[0].Role)
	assert.Equal(t, int64(2), list[0].MemberCount)
	assert.Empty(t, list[0].InviteCode)
	assert.Equal(t, "Curse of the Pale Tower", list[0].Name)

	assert.Equal(t, own.ID, list[1].ID)
	assert.Equal(t, taverna.RoleDM, list[1].Role)
	assert.Equal(t, int64(2), list[1].MemberCount)
	assert.Equal(t, own.InviteCode, list[1].InviteCode)

	mustCall(t, tb.srv, tb.dm, "GET", "/campaigns", nil, &list, http.StatusOK)
	require.Len(t, list, 3)
	assert.Equal(t, int64(1), list[2].MemberCount)

	stranger := createTestUser(t, tb.db, "stranger", taverna.PlatformUser)
	mustCall(t, tb.srv, stranger, "GET", "/campaigns", nil, &list, http.StatusOK)
	assert.Empty(t, list)
}

func TestJoinCampaign(t *testing.T) {
	srv, db := setupTestServer(t)
	dm := createTestUser(t, db, "dm", taverna.PlatformUser)

	var c CampaignSummary
	mustCall(t, srv, dm, "POST", "/campaigns", CreateCampaignRequest{Name: "Small Table", MaxPlayers: 3}, &c, http.StatusCreated)

	p1 := createTestUser(t, db, "p1", taverna.PlatformUser)
	var joined CampaignSummary
	mustCall(t, srv, p1, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: c.InviteCode}, &joined, http.StatusOK)
	assert.Equal(t, int64(2), joined.MemberCount)
	assert.Equal(t, taverna.RolePlayer, joined.Role)
	assert.Empty(t, joined.InviteCode, "players do not see the invite code")

	code, _ := call(t, srv, p1, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: c.InviteCode}, nil)
	assert.Equal(t, http.StatusConflict, code, "joining twice")

	p2 := createTestUser(t, db, "p2", taverna.PlatformUser)
	mustCall(t, srv, p2, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: c.InviteCode}, &joined, http.StatusOK)
	assert.Equal(t, int64(3), joined.MemberCount)

	p3 := createTestUser(t, db, "p3", taverna.PlatformUser)
	code, env := call(t, srv, p3, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: c.InviteCode}, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, env.Error)

	var count int64
	require.NoError(t, db.Model(&CampaignMember{}).Where("campaign_id = ?", c.ID).Count(&count).Error)
	assert.Equal(t, int64(3), count, "a full campaign takes no one")

	code, _ = call(t, srv, p3, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestJoinArchivedCampaign(t *testing.T) {
	tb := setupTable(t)
	archived := taverna.CampaignArchived
	mustCall(t, tb.srv, tb.dm, "PATCH", tb.path("/campaigns/%d", tb.campaign.ID), UpdateCampaignRequest{Status: &archived}, nil, http.StatusOK)

	late := createTestUser(t, tb.db, "late", taverna.PlatformUser)
	code, _ := call(t, tb.srv, late, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: tb.campaign.InviteCode}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestCampaignAccess(t *testing.T) {
	tb := setupTable(t)
	outsider := createTestUser(t, tb.db, "outsider", taverna.PlatformUser)

	code, _ := call(t, tb.srv, outsider, "GET", tb.path("/campaigns/%d", tb.campaign.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var c CampaignSummary
	mustCall(t, tb.srv, tb.player, "GET", tb.path("/campaigns/%d", tb.campaign.ID), nil, &c, http.StatusOK)
	assert.Equal(t, int64(2), c.MemberCount)
	assert.Empty(t, c.InviteCode)

	name := "Renamed"
	code, _ = call(t, tb.srv, tb.player, "PATCH", tb.path("/campaigns/%d", tb.campaign.ID), UpdateCampaignRequest{Name: &name}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, tb.srv, tb.player, "POST", tb.path("/campaigns/%d/invite-code", tb.campaign.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, tb.srv, tb.dm, "GET", "/campaigns/0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRegenerateInviteCode(t *testing.T) {
	tb := setupTable(t)

	var out map[string]string
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/campaigns/%d/invite-code", tb.campaign.ID), nil, &out, http.StatusOK)
	require.NotEmpty(t, out["inviteCode"])
	assert.NotEqual(t, tb.campaign.InviteCode, out["inviteCode"])

	late := createTestUser(t, tb.db, "late", taverna.PlatformUser)
	code, _ := call(t, tb.srv, late, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: tb.campaign.InviteCode}, nil)
	assert.Equal(t, http.StatusNotFound, code, "old code stops working")
	mustCall(t, tb.srv, late, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: out["inviteCode"]}, nil, http.StatusOK)
}

func TestRemoveMember(t *testing.T) {
	tb := setupTable(t)

	var ch Character
	mustCall(t, tb.srv, tb.player, "POST", tb.path("/campaigns/%d/characters", tb.campaign.ID), map[string]any{"name": "Elowen"}, &ch, http.StatusCreated)

	code, _ := call(t, tb.srv, tb.dm, "DELETE", tb.path("/campaigns/%d/members/%d", tb.campaign.ID, tb.dm.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, code, "the DM cannot leave")

	other := createTestUser(t, tb.db, "other", taverna.PlatformUser)
	mustCall(t, tb.srv, other, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: tb.campaign.InviteCode}, nil, http.StatusOK)
	code, _ = call(t, tb.srv, other, "DELETE", tb.path("/campaigns/%d/members/%d", tb.campaign.ID, tb.player.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code, "players cannot kick each other")

	mustCall(t, tb.srv, tb.player, "DELETE", tb.path("/campaigns/%d/members/%d", tb.campaign.ID, tb.player.ID), nil, nil, http.StatusOK)

	var n int64
	require.NoError(t, tb.db.Model(&Character{}).Where("id = ?", ch.ID).Count(&n).Error)
	assert.Zero(t, n, "characters leave with their owner")

	var members []CampaignMember
	mustCall(t, tb.srv, tb.dm, "GET", tb.path("/campaigns/%d/members", tb.campaign.ID), nil, &members, http.StatusOK)
	assert.Len(t, members, 2)
}

func TestDeleteCampaign(t *testing.T) {
	tb := setupTable(t)
	s := tb.newSession(t)
	tb.addCombatant(t, s.ID, "Goblin", 12)
	mustCall(t, tb.srv, tb.player, "POST", tb.path("/campaigns/%d/messages", tb.campaign.ID), SendMessageRequest{Content: "hello"}, nil, http.StatusCreated)

	code, _ := call(t, tb.srv, tb.player, "DELETE", tb.path("/campaigns/%d", tb.campaign.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	mustCall(t, tb.srv, tb.dm, "DELETE", tb.path("/campaigns/%d", tb.campaign.ID), nil, nil, http.StatusOK)

	for _, model := range []any{&Campaign{}, &CampaignMember{}, &GameSession{}, &InitiativeEntry{}, &ChatMessage{}} {
		var n int64
		require.NoError(t, tb.db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T left behind", model)
	}
}
