package main

import (
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/icco/taverna"
)

type CreateSessionRequest struct {
	SessionNumber int    `json:"sessionNumber" validate:"gte=0" example:"3"`
	Title         string `json:"title" validate:"max=200" example:"Into the Barrow"`
}

type SessionStatusRequest struct {
	Status taverna.SessionStatus `json:"status" validate:"required" example:"LIVE"`
}

// sortEntries returns entries in turn order.
func sortEntries(entries []InitiativeEntry) []InitiativeEntry {
	order := make([]taverna.Combatant, len(entries))
	byID := make(map[int64]InitiativeEntry, len(entries))
	for i := range entries {
		order[i] = entries[i].combatant()
		byID[entries[i].ID] = entries[i]
	}
	taverna.SortInitiative(order)

	out := make([]InitiativeEntry, len(order))
	for i, c := range order {
		out[i] = byID[c.ID]
	}
	return out
}

func loadInitiative(db *gorm.DB, sessionID int64) ([]InitiativeEntry, error) {
	var entries []InitiativeEntry
	if err := db.Where("session_id = ?", sessionID).Order("id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return sortEntries(entries), nil
}

// withInitiative fills in the session's sorted initiative order.
func withInitiative(db *gorm.DB, s *GameSession) error {
	entries, err := loadInitiative(db, s.ID)
	if err != nil {
		return err
	}
	s.Initiative = entries
	return nil
}

// advanceTurn moves the active flag along the initiative order and bumps the
// round when it wraps. Must run inside a transaction.
func advanceTurn(tx *gorm.DB, s *GameSession) (taverna.Turn, error) {
	entries, err := loadInitiative(tx, s.ID)
	if err != nil {
		return taverna.Turn{}, err
	}

	order := make([]taverna.Combatant, len(entries))
	for i := range entries {
		order[i] = entries[i].combatant()
	}

	turn, ok := taverna.AdvanceTurn(order, s.CurrentRound)
	if !ok {
		s.Initiative = entries
		return turn, nil
	}

	for i := range entries {
		if entries[i].IsActive == order[i].IsActive {
			continue
		}
		entries[i].IsActive = order[i].IsActive
		if err := tx.Model(&InitiativeEntry{}).Where("id = ?", entries[i].ID).Update("is_active", order[i].IsActive).Error; err != nil {
			return turn, err
		}
	}

	if turn.Round != s.CurrentRound {
		if err := tx.Model(s).Update("current_round", turn.Round).Error; err != nil {
			return turn, err
		}
		s.CurrentRound = turn.Round
	}
	s.Initiative = entries
	return turn, nil
}

// @Summary List sessions
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response{data=[]GameSession}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/sessions [get]
func listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	if _, err := requireMember(db, campaignID, identityFrom(r)); err != nil {
		renderError(w, r, err)
		return
	}

	var sessions []GameSession
	if err := db.Where("campaign_id = ?", campaignID).Order("session_number").Find(&sessions).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, sessions)
}

// @Summary Create a session
// @Description DM only. sessionNumber defaults to the next free number.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param session body CreateSessionRequest true "Session"
// @Success 201 {object} Response{data=GameSession}
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Router /campaigns/{id}/sessions [post]
func createSessionHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	s := GameSession{
		CampaignID:    campaignID,
		SessionNumber: req.SessionNumber,
		Title:         ugcPolicy.Sanitize(req.Title),
		Status:        taverna.SessionLobby,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireDM(tx, campaignID, identityFrom(r)); err != nil {
			return err
		}
		if s.SessionNumber == 0 {
			var last int
			if err := tx.Model(&GameSession{}).Where("campaign_id = ?", campaignID).
				Select("COALESCE(MAX(session_number), 0)").Scan(&last).Error; err != nil {
				return err
			}
			s.SessionNumber = last + 1
		}
		if err := tx.Create(&s).Error; err != nil {
			return dbError(err, "session number")
		}
		return nil
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	publish(r.Context(), campaignID, EventSessionUpdated, map[string]int64{"sessionId": s.ID})
	renderData(w, http.StatusCreated, s)
}

// @Summary Get a session
// @Description Includes the initiative order
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response{data=GameSession}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /sessions/{id} [get]
func getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	s, _, err := sessionAccess(db, sessionID, identityFrom(r), false)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := withInitiative(db, s); err != nil {
		renderError(w, r, err)
		return
	}
	if s.Initiative == nil {
		s.Initiative = []InitiativeEntry{}
	}
	renderData(w, http.StatusOK, s)
}

// @Summary Delete a session
// @Description DM only. Removes its initiative and combat log.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /sessions/{id} [delete]
func deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var campaignID int64
	err = db.Transaction(func(tx *gorm.DB) error {
		s, _, err := sessionAccess(tx, sessionID, identityFrom(r), true)
		if err != nil {
			return err
		}
		campaignID = s.CampaignID
		return deleteSession(tx, s.ID)
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	publish(r.Context(), campaignID, EventSessionUpdated, map[string]int64{"deleted": sessionID})
	renderData(w, http.StatusOK, map[string]int64{"deleted": sessionID})
}

// @Summary Change session status
// @Description DM only. LOBBY to LIVE, LIVE and PAUSED back and forth, then ENDED.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Param status body SessionStatusRequest true "New status"
// @Success 200 {object} Response{data=GameSession}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Router /sessions/{id}/status [post]
func sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req SessionStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var s *GameSession
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, identityFrom(r), true)
		if err != nil {
			return err
		}

		lc := s.lifecycle()
		if err := lc.Transition(req.Status, time.Now().UTC()); err != nil {
			return err
		}
		s.Status, s.StartedAt, s.EndedAt = lc.Status, lc.StartedAt, lc.EndedAt

		return tx.Model(s).Updates(map[string]any{
			"status":     s.Status,
			"started_at": s.StartedAt,
			"ended_at":   s.EndedAt,
		}).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	log.Infow("session status changed", "session_id", s.ID, "status", s.Status)
	publish(r.Context(), s.CampaignID, EventSessionUpdated, map[string]any{"sessionId": s.ID, "status": s.Status})
	renderData(w, http.StatusOK, s)
}

// setConnected adds or removes the caller from the session's connected
// players.
func setConnected(w http.ResponseWriter, r *http.Request, join bool) {
	sessionID, err := idParam(r, "id")
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
	var s *GameSession
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, id, false)
		if err != nil {
			return err
		}
		if join && s.Status == taverna.SessionEnded {
			return taverna.ErrSessionEnded
		}

		if join {
			s.ConnectedPlayers = taverna.AddConnected(s.ConnectedPlayers, id.UserID)
		} else {
			s.ConnectedPlayers = taverna.RemoveConnected(s.ConnectedPlayers, id.UserID)
		}
		return tx.Save(s).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	publish(r.Context(), s.CampaignID, EventSessionUpdated, map[string]any{"sessionId": s.ID, "connectedPlayers": s.ConnectedPlayers})
	renderData(w, http.StatusOK, s)
}

// @Summary Join a session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response{data=GameSession}
// @Failure 409 {object} Response
// @Router /sessions/{id}/join [post]
func joinSessionHandler(w http.ResponseWriter, r *http.Request) {
	setConnected(w, r, true)
}

// @Summary Leave a session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response{data=GameSession}
// @Router /sessions/{id}/leave [post]
func leaveSessionHandler(w http.ResponseWriter, r *http.Request) {
	setConnected(w, r, false)
}

// @Summary Advance initiative
// @Description DM only. Activates the next combatant and bumps the round on wrap.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response{data=GameSession}
// @Failure 403 {object} Response
// @Router /sessions/{id}/next-turn [post]
func nextTurnHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var s *GameSession
	var turn taverna.Turn
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, identityFrom(r), true)
		if err != nil {
			return err
		}
		if s.Status == taverna.SessionEnded {
			return taverna.ErrSessionEnded
		}
		turn, err = advanceTurn(tx, s)
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	if len(s.Initiative) > 0 {
		stats().turns.Add(r.Context(), 1)
		log.Debugw("turn advanced", "session_id", s.ID, "round", turn.Round, "active", s.Initiative[turn.Index].Name)
		publish(r.Context(), s.CampaignID, EventInitiativeUpdated, map[string]any{"sessionId": s.ID, "round": turn.Round})
	}
	if s.Initiative == nil {
		s.Initiative = []InitiativeEntry{}
	}
	renderData(w, http.StatusOK, s)
}
