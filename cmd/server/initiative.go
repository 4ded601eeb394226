package main

import (
	"fmt"
	"net/http"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

type CreateInitiativeRequest struct {
	Name            string      `json:"name" validate:"required,max=100" example:"Goblin Boss"`
	Initiative      int         `json:"initiative" validate:"gte=-50,lte=100" example:"14"`
	HP              *taverna.HP `json:"hp,omitempty"`
	ArmorClass      *int        `json:"armorClass,omitempty" validate:"omitempty,gte=0,lte=50"`
	Conditions      []string    `json:"conditions,omitempty" validate:"max=30,dive,max=50"`
	ConcentratingOn *string     `json:"concentratingOn,omitempty" validate:"omitempty,max=100"`
	IsActive        bool        `json:"isActive"`
	CharacterID     *int64      `json:"characterId,omitempty"`
	IsNPC           bool        `json:"isNpc"`
}

// HPChange sets either side of an entry's hit points.
type HPChange struct {
	Current *int `json:"current,omitempty" validate:"omitempty,gte=-1000,lte=100000"`
	Max     *int `json:"max,omitempty" validate:"omitempty,gte=0,lte=100000"`
}

// UpdateInitiativeRequest changes an entry. Absent fields are left alone;
// an empty concentratingOn clears it.
type UpdateInitiativeRequest struct {
	Name            *string   `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Initiative      *int      `json:"initiative,omitempty" validate:"omitempty,gte=-50,lte=100"`
	HP              *HPChange `json:"hp,omitempty"`
	ArmorClass      *int      `json:"armorClass,omitempty" validate:"omitempty,gte=0,lte=50"`
	Conditions      *[]string `json:"conditions,omitempty" validate:"omitempty,max=30,dive,max=50"`
	ConcentratingOn *string   `json:"concentratingOn,omitempty" validate:"omitempty,max=100"`
	IsActive        *bool     `json:"isActive,omitempty"`
}

type LogRequest struct {
	Action taverna.LogAction `json:"action" validate:"required" example:"NARRATION"`
	Actor  string            `json:"actor" validate:"max=100" example:"Elowen"`
	Result string            `json:"result" validate:"required,max=2000" example:"The bridge collapses behind the party."`
}

// appendLog stores events against the session's current round.
func appendLog(tx *gorm.DB, s *GameSession, events []taverna.LogEvent) ([]CombatLogEntry, error) {
	rows := make([]CombatLogEntry, 0, len(events))
	for _, ev := range events {
		rows = append(rows, CombatLogEntry{
			SessionID: s.ID,
			Round:     s.CurrentRound,
			Turn:      ev.Actor,
			Action:    ev.Action,
			Result:    ev.Result,
			Payload:   datatypes.NewJSONType(ev.Payload),
		})
	}
	if len(rows) == 0 {
		return rows, nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// announceDeath posts the campaign-wide notice for a combatant dropping.
func announceDeath(tx *gorm.DB, s *GameSession, e *InitiativeEntry) (*ChatMessage, error) {
	msg := ChatMessage{
		CampaignID: s.CampaignID,
		SessionID:  &s.ID,
		Channel:    taverna.ChannelCombat,
		Type:       taverna.MessageCombat,
		SenderName: "System",
		Content:    fmt.Sprintf("%s has fallen!", e.Name),
		Payload: datatypes.NewJSONType(taverna.MessagePayload{
			SessionID: s.ID,
			EntryID:   e.ID,
			Event:     taverna.ActionDeath,
		}),
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func loadEntry(db *gorm.DB, sessionID, entryID int64) (*InitiativeEntry, error) {
	var e InitiativeEntry
	if err := db.Where("id = ? AND session_id = ?", entryID, sessionID).First(&e).Error; err != nil {
		return nil, dbError(err, "initiative entry")
	}
	return &e, nil
}

// @Summary List initiative
// @Description Entries in turn order
// @Tags initiative
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response{data=[]InitiativeEntry}
// @Failure 403 {object} Response
// @Router /sessions/{id}/initiative [get]
func listInitiativeHandler(w http.ResponseWriter, r *http.Request) {
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

	if _, _, err := sessionAccess(db, sessionID, identityFrom(r), false); err != nil {
		renderError(w, r, err)
		return
	}

	entries, err := loadInitiative(db, sessionID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, entries)
}

// @Summary Add a combatant
// @Description DM only
// @Tags initiative
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Param entry body CreateInitiativeRequest true "Combatant"
// @Success 201 {object} Response{data=InitiativeEntry}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /sessions/{id}/initiative [post]
func createInitiativeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req CreateInitiativeRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	hp := taverna.HP{Current: 10, Max: 10}
	if req.HP != nil {
		hp = *req.HP
	}
	e := InitiativeEntry{
		SessionID:   sessionID,
		Name:        ugcPolicy.Sanitize(req.Name),
		Initiative:  req.Initiative,
		HP:          datatypes.NewJSONType(hp),
		ArmorClass:  10,
		Conditions:  taverna.NormalizeConditions(req.Conditions),
		IsActive:    req.IsActive,
		CharacterID: req.CharacterID,
		IsNPC:       req.IsNPC,
	}
	if req.ArmorClass != nil {
		e.ArmorClass = *req.ArmorClass
	}
	if req.ConcentratingOn != nil && *req.ConcentratingOn != "" {
		c := ugcPolicy.Sanitize(*req.ConcentratingOn)
		e.ConcentratingOn = &c
	}

	var s *GameSession
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, identityFrom(r), true)
		if err != nil {
			return err
		}
		if e.CharacterID != nil {
			c, err := loadCharacter(tx, *e.CharacterID)
			if err != nil {
				return err
			}
			if c.CampaignID != s.CampaignID {
				return taverna.Invalid("character is not in this campaign")
			}
		}
		return tx.Create(&e).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	publish(r.Context(), s.CampaignID, EventInitiativeUpdated, map[string]int64{"sessionId": s.ID})
	renderData(w, http.StatusCreated, e)
}

// @Summary Update a combatant
// @Description DM only. HP and condition changes are written to the combat log.
// @Tags initiative
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Param entryId path int true "Entry ID"
// @Param entry body UpdateInitiativeRequest true "Fields to change"
// @Success 200 {object} Response{data=InitiativeEntry}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /sessions/{id}/initiative/{entryId} [patch]
func updateInitiativeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	entryID, err := idParam(r, "entryId")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req UpdateInitiativeRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	var (
		s    *GameSession
		e    *InitiativeEntry
		rows []CombatLogEntry
		msg  *ChatMessage
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, id, true)
		if err != nil {
			return err
		}
		e, err = loadEntry(tx, sessionID, entryID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			e.Name = ugcPolicy.Sanitize(*req.Name)
		}
		if req.Initiative != nil {
			e.Initiative = *req.Initiative
		}
		if req.ArmorClass != nil {
			e.ArmorClass = *req.ArmorClass
		}
		if req.IsActive != nil {
			e.IsActive = *req.IsActive
		}
		if req.ConcentratingOn != nil {
			if *req.ConcentratingOn == "" {
				e.ConcentratingOn = nil
			} else {
				c := ugcPolicy.Sanitize(*req.ConcentratingOn)
				e.ConcentratingOn = &c
			}
		}

		var events []taverna.LogEvent
		if req.HP != nil {
			before := e.HP.Data()
			after := before
			if req.HP.Current != nil {
				after.Current = *req.HP.Current
			}
			if req.HP.Max != nil {
				after.Max = *req.HP.Max
			}
			hpEvents, fell := taverna.HPEvents(e.Name, before, after, id.UserID)
			events = append(events, hpEvents...)
			e.HP = datatypes.NewJSONType(after)
			if fell {
				if msg, err = announceDeath(tx, s, e); err != nil {
					return err
				}
			}
		}
		if req.Conditions != nil {
			after := taverna.NormalizeConditions(*req.Conditions)
			events = append(events, taverna.ConditionEvents(e.Name, e.Conditions, after, id.UserID)...)
			e.Conditions = after
		}

		if err := tx.Save(e).Error; err != nil {
			return err
		}
		rows, err = appendLog(tx, s, events)
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	stats().loggedRows(r.Context(), rows)
	publish(r.Context(), s.CampaignID, EventInitiativeUpdated, map[string]int64{"sessionId": s.ID, "entryId": e.ID})
	if len(rows) > 0 {
		publish(r.Context(), s.CampaignID, EventLogAppended, rows)
	}
	if msg != nil {
		stats().chatMessages.Add(r.Context(), 1)
		publish(r.Context(), s.CampaignID, EventMessageCreated, msg)
	}
	renderData(w, http.StatusOK, e)
}

// @Summary Remove a combatant
// @Description DM only. Writes a REMOVED log row.
// @Tags initiative
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Param entryId path int true "Entry ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /sessions/{id}/initiative/{entryId} [delete]
func deleteInitiativeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	entryID, err := idParam(r, "entryId")
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
	var rows []CombatLogEntry
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, id, true)
		if err != nil {
			return err
		}
		e, err := loadEntry(tx, sessionID, entryID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&InitiativeEntry{}, e.ID).Error; err != nil {
			return err
		}
		rows, err = appendLog(tx, s, []taverna.LogEvent{taverna.RemovedEvent(e.Name, id.UserID)})
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	stats().loggedRows(r.Context(), rows)
	publish(r.Context(), s.CampaignID, EventInitiativeUpdated, map[string]int64{"sessionId": s.ID, "removed": entryID})
	publish(r.Context(), s.CampaignID, EventLogAppended, rows)
	renderData(w, http.StatusOK, map[string]int64{"deleted": entryID})
}

// visibleLog returns the session's log in order. Secret rolls are only
// returned to the DM.
func visibleLog(db *gorm.DB, sessionID int64, isDM bool) ([]CombatLogEntry, error) {
	q := db.Where("session_id = ?", sessionID)
	if !isDM {
		q = q.Where("action <> ?", taverna.ActionSecretRoll)
	}
	var rows []CombatLogEntry
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// @Summary Read the combat log
// @Tags initiative
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response{data=[]CombatLogEntry}
// @Failure 403 {object} Response
// @Router /sessions/{id}/log [get]
func listLogHandler(w http.ResponseWriter, r *http.Request) {
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

	_, a, err := sessionAccess(db, sessionID, identityFrom(r), false)
	if err != nil {
		renderError(w, r, err)
		return
	}

	rows, err := visibleLog(db, sessionID, a.IsDM())
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, rows)
}

// @Summary Write to the combat log
// @Description DM only. Accepts ACTION, SPELL, MOVEMENT, NARRATION and STABILIZE.
// @Tags initiative
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Param entry body LogRequest true "Log row"
// @Success 201 {object} Response{data=CombatLogEntry}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /sessions/{id}/log [post]
func createLogHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req LogRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if !req.Action.Manual() {
		renderError(w, r, taverna.Invalid("action %s cannot be written by hand", req.Action))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	var s *GameSession
	var rows []CombatLogEntry
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sessionAccess(tx, sessionID, id, true)
		if err != nil {
			return err
		}
		rows, err = appendLog(tx, s, []taverna.LogEvent{{
			Action:  req.Action,
			Actor:   ugcPolicy.Sanitize(req.Actor),
			Result:  ugcPolicy.Sanitize(req.Result),
			Payload: taverna.LogPayload{UpdatedBy: id.UserID},
		}})
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	stats().loggedRows(r.Context(), rows)
	publish(r.Context(), s.CampaignID, EventLogAppended, rows)
	renderData(w, http.StatusCreated, rows[0])
}

// @Summary Session recap
// @Description Totals built from the combat log
// @Tags initiative
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} Response{data=taverna.Recap}
// @Failure 403 {object} Response
// @Router /sessions/{id}/recap [get]
func recapHandler(w http.ResponseWriter, r *http.Request) {
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

	_, a, err := sessionAccess(db, sessionID, identityFrom(r), false)
	if err != nil {
		renderError(w, r, err)
		return
	}

	rows, err := visibleLog(db, sessionID, a.IsDM())
	if err != nil {
		renderError(w, r, err)
		return
	}

	lines := make([]taverna.LogLine, len(rows))
	for i := range rows {
		lines[i] = rows[i].line()
	}
	renderData(w, http.StatusOK, taverna.BuildRecap(lines, a.IsDM()))
}
