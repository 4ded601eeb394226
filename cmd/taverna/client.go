package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/icco/taverna"
)

// apiClient talks to the Taverna REST API with a bearer token.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// session mirrors the parts of a game session the tracker shows.
type session struct {
	ID            int64       `json:"id"`
	SessionNumber int         `json:"sessionNumber"`
	Title         string      `json:"title"`
	Status        string      `json:"status"`
	CurrentRound  int         `json:"currentRound"`
	Initiative    []combatant `json:"initiative"`
}

type combatant struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Initiative int        `json:"initiative"`
	HP         taverna.HP `json:"hp"`
	ArmorClass int        `json:"armorClass"`
	Conditions []string   `json:"conditions"`
	IsActive   bool       `json:"isActive"`
}

type rollResult struct {
	Formula  string `json:"formula"`
	Rolls    []int  `json:"rolls"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: unexpected response (%d)", method, path, resp.StatusCode)
	}
	if !env.Success {
		return fmt.Errorf("%s (%d)", env.Error, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *apiClient) Session(ctx context.Context, id int64) (*session, error) {
	var s session
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d", id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *apiClient) NextTurn(ctx context.Context, id int64) (*session, error) {
	var s session
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/next-turn", id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetHP sets a combatant's current hit points.
func (c *apiClient) SetHP(ctx context.Context, sessionID, entryID int64, current int) error {
	body := map[string]any{"hp": map[string]int{"current": current}}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/sessions/%d/initiative/%d", sessionID, entryID), body, nil)
}

func (c *apiClient) Roll(ctx context.Context, sessionID int64, formula string) (*rollResult, error) {
	var res rollResult
	body := map[string]any{"formula": formula}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/roll", sessionID), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
