package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/icco/taverna"
	"github.com/icco/taverna/mocks"
)

func TestRollFormula(t *testing.T) {
	tb := setupTable(t)
	s := tb.newSession(t)

	ctrl := gomock.NewController(t)
	mock := mocks.NewMockRoller(ctrl)
	gomock.InOrder(
		mock.EXPECT().Intn(6).Return(1),
		mock.EXPECT().Intn(6).Return(4),
	)
	roller = mock

	var got RollResponse
	mustCall(t, tb.srv, tb.player, "POST", tb.path("/sessions/%d/roll", s.ID), RollRequest{
		Formula:       "2d6+3",
		Label:         "Longsword",
		CharacterName: "Elowen",
	}, &got, http.StatusOK)
	assert.Equal(t, "2d6+3", got.Formula)
	assert.Equal(t, []int{2, 5}, got.Rolls)
	assert.Equal(t, 3, got.Modifier)
	assert.Equal(t, 10, got.Total)
	assert.Equal(t, s.ID, got.SessionID)
	assert.True(t, got.Logged)

	rows := tb.logRows(t, s.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, taverna.ActionDiceRoll, rows[0].Action)
	assert.Equal(t, "Elowen", rows[0].Turn)
	assert.Equal(t, "Elowen rolled 2d6+3 for Longsword: 10", rows[0].Result)

	var msgs []ChatMessage
	require.NoError(t, tb.db.Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, taverna.MessageDice, msgs[0].Type)
	assert.Equal(t, taverna.ChannelGeneral, msgs[0].Channel)
	require.NotNil(t, msgs[0].Payload.Data().Roll)
	assert.Equal(t, 10, msgs[0].Payload.Data().Roll.Total)
}

func TestRollStaysInBounds(t *testing.T) {
	tb := setupTable(t)
	s := tb.newSession(t)

	var err error
	roller, err = taverna.NewRoller()
	require.NoError(t, err)

	for range 20 {
		var got RollResponse
		mustCall(t, tb.srv, tb.player, "POST", tb.path("/sessions/%d/roll", s.ID), RollRequest{Formula: "3d4-1"}, &got, http.StatusOK)
		require.Len(t, got.Rolls, 3)
		sum := 0
		for _, r := range got.Rolls {
			assert.GreaterOrEqual(t, r, 1)
			assert.LessOrEqual(t, r, 4)
			sum += r
		}
		assert.Equal(t, sum-1, got.Total)
	}
}

func TestPrivateRoll(t *testing.T) {
	tb := setupTable(t)
	s := tb.newSession(t)

	var got RollResponse
	mustCall(t, tb.srv, tb.player, "POST", tb.path("/sessions/%d/roll", s.ID), RollRequest{Formula: "1d20", IsPrivate: true}, &got, http.StatusOK)
	assert.Equal(t, 4, got.Total)

	var n int64
	require.NoError(t, tb.db.Model(&ChatMessage{}).Count(&n).Error)
	assert.Zero(t, n, "private rolls stay out of chat")

	rows := tb.logRows(t, s.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, taverna.ActionSecretRoll, rows[0].Action)

	var playerView, dmView []CombatLogEntry
	mustCall(t, tb.srv, tb.player, "GET", tb.path("/sessions/%d/log", s.ID), nil, &playerView, http.StatusOK)
	mustCall(t, tb.srv, tb.dm, "GET", tb.path("/sessions/%d/log", s.ID), nil, &dmView, http.StatusOK)
	assert.Empty(t, playerView)
	assert.Len(t, dmView, 1)
}

func TestRollErrors(t *testing.T) {
	tb := setupTable(t)
	s := tb.newSession(t)
	outsider := createTestUser(t, tb.db, "outsider", taverna.PlatformUser)

	tests := []struct {
		name string
		user *testUser
		req  RollRequest
		want int
	}{
		{"bad formula", tb.player, RollRequest{Formula: "roll a d20"}, http.StatusBadRequest},
		{"too many dice", tb.player, RollRequest{Formula: "101d6"}, http.StatusBadRequest},
		{"missing formula", tb.player, RollRequest{}, http.StatusBadRequest},
		{"not a member", outsider, RollRequest{Formula: "1d20"}, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := call(t, tb.srv, tc.user, "POST", tb.path("/sessions/%d/roll", s.ID), tc.req, nil)
			assert.Equal(t, tc.want, code)
		})
	}
	assert.Empty(t, tb.logRows(t, s.ID))
}

func TestRollTable(t *testing.T) {
	tb := setupTable(t)
	s := tb.newSession(t)
	path := tb.path("/sessions/%d/roll-table", s.ID)

	entries := []taverna.TableEntry{
		{Min: 1, Max: 2, Result: "A swarm of bats"},
		{Min: 3, Max: 4, Result: "Nothing happens"},
		{Min: 7, Max: 8, Result: "You turn into a potted plant"},
	}

	// fixedRoller(3) lands on 4 of d8
	var got RollTableResponse
	mustCall(t, tb.srv, tb.player, "POST", path, RollTableRequest{Entries: entries, Label: "Wild Magic"}, &got, http.StatusOK)
	assert.Equal(t, 8, got.Die)
	assert.Equal(t, 4, got.Roll)
	assert.True(t, got.Matched)
	require.NotNil(t, got.Entry)
	assert.Equal(t, "Nothing happens", got.Entry.Result)

	roller = fixedRoller(4)
	mustCall(t, tb.srv, tb.player, "POST", path, RollTableRequest{Entries: entries}, &got, http.StatusOK)
	assert.Equal(t, 5, got.Roll)
	assert.False(t, got.Matched, "5 falls in a gap")
	assert.Nil(t, got.Entry)

	rows := tb.logRows(t, s.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, "1d8", rows[0].Payload.Data().Formula)
	assert.Contains(t, rows[0].Result, "Nothing happens")
	assert.Contains(t, rows[1].Result, "no entry")

	code, _ := call(t, tb.srv, tb.player, "POST", path, RollTableRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, tb.srv, tb.player, "POST", path, RollTableRequest{Entries: []taverna.TableEntry{{Min: 5, Max: 2, Result: "backwards"}}}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
