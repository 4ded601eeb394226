package main

import (
	"fmt"
	"net/http"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

type RollRequest struct {
	Formula       string `json:"formula" validate:"required,max=32" example:"2d6+3"`
	Label         string `json:"label,omitempty" validate:"max=100" example:"Longsword"`
	CharacterName string `json:"characterName,omitempty" validate:"max=100"`
	IsPrivate     bool   `json:"isPrivate"`
}

type RollResponse struct {
	Formula   string `json:"formula"`
	Rolls     []int  `json:"rolls"`
	Total     int    `json:"total"`
	Modifier  int    `json:"modifier"`
	Label     string `json:"label,omitempty"`
	SessionID int64  `json:"sessionId"`
	Round     int    `json:"round"`
	Logged    bool   `json:"logged"`
}

type RollTableRequest struct {
	Entries   []taverna.TableEntry `json:"entries" validate:"max=100,dive"`
	Label     string               `json:"label,omitempty" validate:"max=100" example:"Wild Magic Surge"`
	IsPrivate bool                 `json:"isPrivate"`
}

type RollTableResponse struct {
	taverna.TableResult
	SessionID int64 `json:"sessionId"`
	Round     int   `json:"round"`
	Logged    bool  `json:"logged"`
}

// recordRoll writes a roll to the combat log and, unless it is private,
// posts it to chat. Must run inside a transaction.
func recordRoll(tx *gorm.DB, s *GameSession, id Identity, ev taverna.LogEvent, res taverna.RollResult, private bool) ([]CombatLogEntry, *ChatMessage, error) {
	rows, err := appendLog(tx, s, []taverna.LogEvent{ev})
	if err != nil {
		return nil, nil, err
	}
	if private {
		return rows, nil, nil
	}

	msg := ChatMessage{
		CampaignID: s.CampaignID,
		SessionID:  &s.ID,
		Channel:    taverna.ChannelGeneral,
		Type:       taverna.MessageDice,
		SenderID:   &id.UserID,
		SenderName: id.Name,
		Content:    ev.Result,
		Payload: datatypes.NewJSONType(taverna.MessagePayload{
			Roll:      &res,
			Label:     ev.Payload.Label,
			SessionID: s.ID,
			Event:     ev.Action,
		}),
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, nil, err
	}
	return rows, &msg, nil
}

func rollerName(id Identity, characterName string) string {
	if characterName != "" {
		return ugcPolicy.Sanitize(characterName)
	}
	if id.Name != "" {
		return id.Name
	}
	return fmt.Sprintf("user %d", id.UserID)
}

// rollCommitted publishes what a roll wrote. Private rolls stay quiet.
func rollCommitted(r *http.Request, s *GameSession, kind string, private bool, rows []CombatLogEntry, msg *ChatMessage) {
	stats().rolled(r.Context(), kind, private)
	stats().loggedRows(r.Context(), rows)
	if private {
		return
	}
	publish(r.Context(), s.CampaignID, EventLogAppended, rows)
	if msg != nil {
		stats().chatMessages.Add(r.Context(), 1)
		publish(r.Context(), s.CampaignID, EventMessageCreated, msg)
	}
}

// @Summary Roll dice
// @Description The server rolls the formula and writes it to the combat log. Private rolls are logged as SECRET_ROLL and only the DM sees them.
// @Tags dice
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Param roll body RollRequest true "Roll"
// @Success 200 {object} Response{data=RollResponse}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /sessions/{id}/roll [post]
func rollHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req RollRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	f, err := taverna.ParseFormula(req.Formula)
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	label := ugcPolicy.Sanitize(req.Label)
	var (
		s    *GameSession
		res  taverna.RollResult
		rows []CombatLogEntry
		msg  *ChatMessage
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, id, false)
		if err != nil {
			return err
		}
		if s.Status == taverna.SessionEnded {
			return taverna.ErrSessionEnded
		}

		res = taverna.Roll(roller, f)
		ev := taverna.RollEvent(rollerName(id, req.CharacterName), res, label, req.IsPrivate, id.UserID)
		rows, msg, err = recordRoll(tx, s, id, ev, res, req.IsPrivate)
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	rollCommitted(r, s, "formula", req.IsPrivate, rows, msg)
	renderData(w, http.StatusOK, RollResponse{
		Formula:   res.Formula,
		Rolls:     res.Rolls,
		Total:     res.Total,
		Modifier:  res.Modifier,
		Label:     label,
		SessionID: s.ID,
		Round:     s.CurrentRound,
		Logged:    true,
	})
}

// @Summary Roll on a random table
// @Description Rolls 1dN where N is the largest max and returns the matching entry. A roll that lands in a gap reports matched false.
// @Tags dice
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Param table body RollTableRequest true "Table"
// @Success 200 {object} Response{data=RollTableResponse}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /sessions/{id}/roll-table [post]
func rollTableHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req RollTableRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if len(req.Entries) == 0 {
		renderError(w, r, taverna.Invalid("table has no entries"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	label := ugcPolicy.Sanitize(req.Label)
	var (
		s    *GameSession
		out  taverna.TableResult
		rows []CombatLogEntry
		msg  *ChatMessage
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, id, false)
		if err != nil {
			return err
		}
		if s.Status == taverna.SessionEnded {
			return taverna.ErrSessionEnded
		}

		out, err = taverna.RollTable(roller, req.Entries)
		if err != nil {
			return err
		}

		res := taverna.RollResult{
			Formula: fmt.Sprintf("1d%d", out.Die),
			Rolls:   []int{out.Roll},
			Total:   out.Roll,
		}
		ev := taverna.RollEvent(rollerName(id, ""), res, label, req.IsPrivate, id.UserID)
		if out.Matched {
			ev.Result = fmt.Sprintf("%s (%s)", ev.Result, ugcPolicy.Sanitize(out.Entry.Result))
		} else {
			ev.Result += " (no entry)"
		}
		rows, msg, err = recordRoll(tx, s, id, ev, res, req.IsPrivate)
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	rollCommitted(r, s, "table", req.IsPrivate, rows, msg)
	renderData(w, http.StatusOK, RollTableResponse{
		TableResult: out,
		SessionID:   s.ID,
		Round:       s.CurrentRound,
		Logged:      true,
	})
}
