package main

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/icco/taverna"
)

type QuestRequest struct {
	Title       *string              `json:"title,omitempty" validate:"omitempty,min=1,max=200" example:"Find the missing caravan"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=5000"`
	Status      *taverna.QuestStatus `json:"status,omitempty" example:"OPEN"`
	Reward      *string              `json:"reward,omitempty" validate:"omitempty,max=500" example:"200 gp"`
	Hidden      *bool                `json:"hidden,omitempty"`
}

func (req QuestRequest) apply(q *Quest) error {
	if req.Status != nil {
		if !req.Status.Valid() {
			return taverna.Invalid("unknown quest status %q", *req.Status)
		}
		q.Status = *req.Status
	}
	if req.Title != nil {
		q.Title = ugcPolicy.Sanitize(*req.Title)
	}
	if req.Description != nil {
		q.Description = contentPolicy.Sanitize(*req.Description)
	}
	if req.Reward != nil {
		q.Reward = ugcPolicy.Sanitize(*req.Reward)
	}
	if req.Hidden != nil {
		q.Hidden = *req.Hidden
	}
	return nil
}

func questAccess(db *gorm.DB, questID int64, id Identity) (*Quest, error) {
	var q Quest
	if err := db.First(&q, questID).Error; err != nil {
		return nil, dbError(err, "quest")
	}
	if _, err := requireDM(db, q.CampaignID, id); err != nil {
		return nil, err
	}
	return &q, nil
}

// @Summary List quests
// @Description Players do not see hidden quests
// @Tags quests
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response{data=[]Quest}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/quests [get]
func listQuestsHandler(w http.ResponseWriter, r *http.Request) {
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

	a, err := requireMember(db, campaignID, identityFrom(r))
	if err != nil {
		renderError(w, r, err)
		return
	}

	q := db.Where("campaign_id = ?", campaignID)
	if !a.IsDM() {
		q = q.Where("hidden = ?", false)
	}
	var quests []Quest
	if err := q.Order("id").Find(&quests).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, quests)
}

// @Summary Create a quest
// @Description DM only
// @Tags quests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param quest body QuestRequest true "Quest"
// @Success 201 {object} Response{data=Quest}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id}/quests [post]
func createQuestHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req QuestRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Title == nil {
		renderError(w, r, taverna.Invalid("title is required"))
		return
	}

	q := Quest{CampaignID: campaignID, Status: taverna.QuestOpen}
	if err := req.apply(&q); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireDM(tx, campaignID, identityFrom(r)); err != nil {
			return err
		}
		return tx.Create(&q).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	if !q.Hidden {
		publish(r.Context(), campaignID, EventCampaignUpdated, map[string]int64{"questId": q.ID})
	}
	renderData(w, http.StatusCreated, q)
}

// @Summary Update a quest
// @Description DM only
// @Tags quests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Quest ID"
// @Param quest body QuestRequest true "Fields to change"
// @Success 200 {object} Response{data=Quest}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /quests/{id} [patch]
func updateQuestHandler(w http.ResponseWriter, r *http.Request) {
	questID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req QuestRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var q *Quest
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		q, err = questAccess(tx, questID, identityFrom(r))
		if err != nil {
			return err
		}
		if err := req.apply(q); err != nil {
			return err
		}
		return tx.Save(q).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	publish(r.Context(), q.CampaignID, EventCampaignUpdated, map[string]int64{"questId": q.ID})
	renderData(w, http.StatusOK, q)
}

// @Summary Delete a quest
// @Description DM only
// @Tags quests
// @Produce json
// @Security BearerAuth
// @Param id path int true "Quest ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /quests/{id} [delete]
func deleteQuestHandler(w http.ResponseWriter, r *http.Request) {
	questID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		q, err := questAccess(tx, questID, identityFrom(r))
		if err != nil {
			return err
		}
		return tx.Delete(&Quest{}, q.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusOK, map[string]int64{"deleted": questID})
}
