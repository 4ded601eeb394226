package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icco/taverna"
)

func (tb *table) newScene(t *testing.T, width, height int) Scene {
	t.Helper()
	var s Scene
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/campaigns/%d/scenes", tb.campaign.ID), CreateSceneRequest{
		Name:   "Sunken Crypt",
		Width:  width,
		Height: height,
	}, &s, http.StatusCreated)
	return s
}

func TestCreateScene(t *testing.T) {
	tb := setupTable(t)
	s := tb.newScene(t, 4, 3)
	assert.Equal(t, 50, s.GridSize)

	fog := s.Fog.Data()
	require.Len(t, fog, 3)
	for _, row := range fog {
		assert.Len(t, row, 4)
	}
	assert.Zero(t, fog.Revealed())

	code, _ := call(t, tb.srv, tb.player, "POST", tb.path("/campaigns/%d/scenes", tb.campaign.ID), CreateSceneRequest{Name: "Mine", Width: 2, Height: 2}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, tb.srv, tb.dm, "POST", tb.path("/campaigns/%d/scenes", tb.campaign.ID), CreateSceneRequest{Name: "Huge", Width: 500, Height: 2}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var list []Scene
	mustCall(t, tb.srv, tb.player, "GET", tb.path("/campaigns/%d/scenes", tb.campaign.ID), nil, &list, http.StatusOK)
	assert.Len(t, list, 1)
}

func TestRevealFog(t *testing.T) {
	tb := setupTable(t)
	s := tb.newScene(t, 5, 5)
	path := tb.path("/scenes/%d/fog", s.ID)

	cells := FogRequest{Cells: []taverna.Cell{{Row: 0, Col: 0}, {Row: 2, Col: 3}, {Row: 9, Col: 9}, {Row: -1, Col: 0}}}

	var out FogResponse
	mustCall(t, tb.srv, tb.dm, "POST", path, cells, &out, http.StatusOK)
	assert.Equal(t, 2, out.Changed, "out of range cells are ignored")
	assert.Equal(t, 2, out.Revealed)
	assert.True(t, out.FogRevealed[2][3])

	mustCall(t, tb.srv, tb.dm, "POST", path, cells, &out, http.StatusOK)
	assert.Zero(t, out.Changed, "revealing twice changes nothing")
	assert.Equal(t, 2, out.Revealed)

	code, _ := call(t, tb.srv, tb.player, "POST", path, FogRequest{Cells: []taverna.Cell{{Row: 4, Col: 4}}}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var stored Scene
	require.NoError(t, tb.db.First(&stored, s.ID).Error)
	assert.Equal(t, 2, stored.Fog.Data().Revealed())
	assert.False(t, stored.Fog.Data()[4][4])

	mustCall(t, tb.srv, tb.dm, "DELETE", path, nil, &out, http.StatusOK)
	assert.Zero(t, out.FogRevealed.Revealed())
	require.NoError(t, tb.db.First(&stored, s.ID).Error)
	assert.Zero(t, stored.Fog.Data().Revealed())
}

func TestResetFogAfterResize(t *testing.T) {
	tb := setupTable(t)
	s := tb.newScene(t, 5, 5)
	path := tb.path("/scenes/%d/fog", s.ID)

	width, height := 3, 7
	var resized Scene
	mustCall(t, tb.srv, tb.dm, "PATCH", tb.path("/scenes/%d", s.ID), UpdateSceneRequest{Width: &width, Height: &height}, &resized, http.StatusOK)
	assert.Equal(t, 3, resized.Width)
	assert.Equal(t, 7, resized.Height)

	// the old 5x5 grid is kept until the fog is reset
	var out FogResponse
	mustCall(t, tb.srv, tb.dm, "POST", path, FogRequest{Cells: []taverna.Cell{{Row: 6, Col: 2}}}, &out, http.StatusOK)
	assert.Zero(t, out.Changed)

	mustCall(t, tb.srv, tb.dm, "DELETE", path, nil, &out, http.StatusOK)
	require.Len(t, out.FogRevealed, 7)
	for _, row := range out.FogRevealed {
		assert.Len(t, row, 3)
	}

	mustCall(t, tb.srv, tb.dm, "POST", path, FogRequest{Cells: []taverna.Cell{{Row: 6, Col: 2}, {Row: 0, Col: 4}}}, &out, http.StatusOK)
	assert.Equal(t, 1, out.Changed, "the column beyond the new width is ignored")
	assert.True(t, out.FogRevealed[6][2])

	var stored Scene
	require.NoError(t, tb.db.First(&stored, s.ID).Error)
	require.Len(t, stored.Fog.Data(), 7)
	assert.Len(t, stored.Fog.Data()[0], 3)
}

func TestTokens(t *testing.T) {
	tb := setupTable(t)
	s := tb.newScene(t, 10, 10)

	var ch Character
	mustCall(t, tb.srv, tb.player, "POST", tb.path("/campaigns/%d/characters", tb.campaign.ID), map[string]any{"name": "Elowen"}, &ch, http.StatusCreated)

	name, x, y, hidden := "Elowen", 1, 1, true
	var mine, ogre, ambush Token
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/scenes/%d/tokens", s.ID), TokenRequest{Name: &name, X: &x, Y: &y, CharacterID: &ch.ID}, &mine, http.StatusCreated)
	ogreName := "Ogre"
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/scenes/%d/tokens", s.ID), TokenRequest{Name: &ogreName}, &ogre, http.StatusCreated)
	ambushName := "Ambush"
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/scenes/%d/tokens", s.ID), TokenRequest{Name: &ambushName, Hidden: &hidden}, &ambush, http.StatusCreated)

	code, _ := call(t, tb.srv, tb.player, "POST", tb.path("/scenes/%d/tokens", s.ID), TokenRequest{Name: &name}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var playerView, dmView Scene
	mustCall(t, tb.srv, tb.player, "GET", tb.path("/scenes/%d", s.ID), nil, &playerView, http.StatusOK)
	mustCall(t, tb.srv, tb.dm, "GET", tb.path("/scenes/%d", s.ID), nil, &dmView, http.StatusOK)
	assert.Len(t, playerView.Tokens, 2)
	assert.Len(t, dmView.Tokens, 3)

	// players move their own token and nothing else about it
	nx, ny, size := 4, 5, 3
	var moved Token
	mustCall(t, tb.srv, tb.player, "PATCH", tb.path("/scenes/%d/tokens/%d", s.ID, mine.ID), TokenRequest{X: &nx, Y: &ny, Size: &size}, &moved, http.StatusOK)
	assert.Equal(t, 4, moved.X)
	assert.Equal(t, 5, moved.Y)
	assert.Equal(t, 1, moved.Size)

	code, _ = call(t, tb.srv, tb.player, "PATCH", tb.path("/scenes/%d/tokens/%d", s.ID, ogre.ID), TokenRequest{X: &nx}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, tb.srv, tb.player, "PATCH", tb.path("/scenes/%d/tokens/%d", s.ID, ambush.ID), TokenRequest{X: &nx}, nil)
	assert.Equal(t, http.StatusNotFound, code)

	visible := false
	mustCall(t, tb.srv, tb.dm, "PATCH", tb.path("/scenes/%d/tokens/%d", s.ID, ambush.ID), TokenRequest{Hidden: &visible}, nil, http.StatusOK)
	mustCall(t, tb.srv, tb.dm, "DELETE", tb.path("/scenes/%d/tokens/%d", s.ID, ogre.ID), nil, nil, http.StatusOK)
	mustCall(t, tb.srv, tb.player, "GET", tb.path("/scenes/%d", s.ID), nil, &playerView, http.StatusOK)
	assert.Len(t, playerView.Tokens, 2)
}

func TestDrawings(t *testing.T) {
	tb := setupTable(t)
	s := tb.newScene(t, 10, 10)
	path := tb.path("/scenes/%d/drawings", s.ID)
	line := json.RawMessage(`{"points":[[0,0],[3,4]]}`)

	var mine, secret Drawing
	mustCall(t, tb.srv, tb.player, "POST", path, DrawingRequest{Shape: "line", Data: line}, &mine, http.StatusCreated)
	assert.JSONEq(t, string(line), string(mine.Data))

	code, _ := call(t, tb.srv, tb.player, "POST", path, DrawingRequest{Shape: "circle", DMOnly: true}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	mustCall(t, tb.srv, tb.dm, "POST", path, DrawingRequest{Shape: "circle", DMOnly: true}, &secret, http.StatusCreated)

	var playerView Scene
	mustCall(t, tb.srv, tb.player, "GET", tb.path("/scenes/%d", s.ID), nil, &playerView, http.StatusOK)
	require.Len(t, playerView.Drawings, 1)
	assert.Equal(t, mine.ID, playerView.Drawings[0].ID)

	code, _ = call(t, tb.srv, tb.player, "DELETE", tb.path("/scenes/%d/drawings/%d", s.ID, secret.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
	mustCall(t, tb.srv, tb.player, "DELETE", tb.path("/scenes/%d/drawings/%d", s.ID, mine.ID), nil, nil, http.StatusOK)
	mustCall(t, tb.srv, tb.dm, "DELETE", tb.path("/scenes/%d/drawings/%d", s.ID, secret.ID), nil, nil, http.StatusOK)
}

func TestDeleteScene(t *testing.T) {
	tb := setupTable(t)
	s := tb.newScene(t, 3, 3)
	name := "Crate"
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/scenes/%d/tokens", s.ID), TokenRequest{Name: &name}, nil, http.StatusCreated)

	code, _ := call(t, tb.srv, tb.player, "DELETE", tb.path("/scenes/%d", s.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
	mustCall(t, tb.srv, tb.dm, "DELETE", tb.path("/scenes/%d", s.ID), nil, nil, http.StatusOK)

	var n int64
	require.NoError(t, tb.db.Model(&Token{}).Count(&n).Error)
	assert.Zero(t, n)
}
