package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// fixedRoller always lands on the same face, clamped to the die.
type fixedRoller int

func (f fixedRoller) Intn(n int) int {
	return min(int(f), n-1)
}

func testConfig() Config {
	return Config{
		Port:           "0",
		Env:            "test",
		AuthSecret:     "test-secret",
		AuthURL:        "http://127.0.0.1",
		TokenDuration:  time.Hour,
		AllowedOrigins: []string{"*"},
		ChatPageMax:    100,
	}
}

// setupTestDB opens a private in-memory sqlite database and makes it the
// shared connection.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := openDB(fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	setDB(db)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		setDB(nil)
	})
	return db
}

// setupTestServer wires globals the way main does and serves the full router.
func setupTestServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()

	conf = testConfig()
	roller = fixedRoller(3)
	authService = newAuthService(conf)
	events = localBroker{hub: hub}
	db := setupTestDB(t)

	srv := httptest.NewServer(newRouter())
	t.Cleanup(srv.Close)
	return srv, db
}

type testUser struct {
	User
	token string
}

func createTestUser(t *testing.T, db *gorm.DB, name string, role taverna.PlatformRole) *testUser {
	t.Helper()

	u := User{
		Provider:   "local",
		ProviderID: uuid.NewString(),
		Email:      fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Name:       name,
		Role:       role,
	}
	require.NoError(t, db.Create(&u).Error)

	tok, err := issueToken(&u)
	require.NoError(t, err)
	return &testUser{User: u, token: tok}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// call sends body as JSON and decodes the envelope's data into out when out
// is not nil and the request succeeded.
func call(t *testing.T, srv *httptest.Server, u *testUser, method, path string, body, out any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env), "%s %s", method, path)
	if out != nil && env.Success {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode, env
}

// mustCall is call that fails the test on any status other than want.
func mustCall(t *testing.T, srv *httptest.Server, u *testUser, method, path string, body, out any, want int) {
	t.Helper()
	code, env := call(t, srv, u, method, path, body, out)
	require.Equal(t, want, code, "%s %s: %s", method, path, env.Error)
}

// table is a campaign with a DM and one player already seated.
type table struct {
	srv      *httptest.Server
	db       *gorm.DB
	dm       *testUser
	player   *testUser
	campaign CampaignSummary
}

func setupTable(t *testing.T) *table {
	t.Helper()
	srv, db := setupTestServer(t)

	tb := &table{
		srv:    srv,
		db:     db,
		dm:     createTestUser(t, db, "dungeon-master", taverna.PlatformUser),
		player: createTestUser(t, db, "elowen", taverna.PlatformUser),
	}
	mustCall(t, srv, tb.dm, "POST", "/campaigns", CreateCampaignRequest{Name: "Curse of the Pale Tower"}, &tb.campaign, http.StatusCreated)
	mustCall(t, srv, tb.player, "POST", "/campaigns/join", JoinCampaignRequest{InviteCode: tb.campaign.InviteCode}, nil, http.StatusOK)
	return tb
}

func (tb *table) path(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func (tb *table) newSession(t *testing.T) GameSession {
	t.Helper()
	var s GameSession
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/campaigns/%d/sessions", tb.campaign.ID), CreateSessionRequest{Title: "Into the Barrow"}, &s, http.StatusCreated)
	return s
}

func (tb *table) addCombatant(t *testing.T, sessionID int64, name string, init int) InitiativeEntry {
	t.Helper()
	var e InitiativeEntry
	mustCall(t, tb.srv, tb.dm, "POST", tb.path("/sessions/%d/initiative", sessionID), CreateInitiativeRequest{
		Name:       name,
		Initiative: init,
		HP:         &taverna.HP{Current: 20, Max: 20},
	}, &e, http.StatusCreated)
	return e
}

func (tb *table) logRows(t *testing.T, sessionID int64) []CombatLogEntry {
	t.Helper()
	var rows []CombatLogEntry
	require.NoError(t, tb.db.Where("session_id = ?", sessionID).Order("id").Find(&rows).Error)
	return rows
}
