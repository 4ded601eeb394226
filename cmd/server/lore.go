package main

import (
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/icco/taverna"
)

type LoreRequest struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,min=1,max=200" example:"The Pale Tower"`
	Category *string `json:"category,omitempty" validate:"omitempty,max=50" example:"locations"`
	Body     *string `json:"body,omitempty" validate:"omitempty,max=50000"`
	DMOnly   *bool   `json:"dmOnly,omitempty"`
}

func (req LoreRequest) apply(l *LoreEntry) {
	if req.Title != nil {
		l.Title = ugcPolicy.Sanitize(*req.Title)
	}
	if req.Category != nil {
		l.Category = strings.ToLower(strings.TrimSpace(ugcPolicy.Sanitize(*req.Category)))
	}
	if req.Body != nil {
		l.Body = contentPolicy.Sanitize(*req.Body)
	}
	if req.DMOnly != nil {
		l.DMOnly = *req.DMOnly
	}
}

// loreAccess loads an entry. DM-only entries read as missing for players,
// and writes need the DM.
func loreAccess(db *gorm.DB, loreID int64, id Identity, write bool) (*LoreEntry, error) {
	var l LoreEntry
	if err := db.First(&l, loreID).Error; err != nil {
		return nil, dbError(err, "lore entry")
	}
	a, err := requireMember(db, l.CampaignID, id)
	if err != nil {
		return nil, err
	}
	if !a.IsDM() {
		if l.DMOnly {
			return nil, taverna.NotFound("lore entry not found")
		}
		if write {
			return nil, taverna.ErrNotDM
		}
	}
	return &l, nil
}

// @Summary List lore
// @Description Players do not see DM-only entries
// @Tags lore
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param category query string false "Category filter"
// @Success 200 {object} Response{data=[]LoreEntry}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/lore [get]
func listLoreHandler(w http.ResponseWriter, r *http.Request) {
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
		q = q.Where("dm_only = ?", false)
	}
	if c := strings.ToLower(ugcPolicy.Sanitize(r.URL.Query().Get("category"))); c != "" {
		q = q.Where("category = ?", c)
	}

	var entries []LoreEntry
	if err := q.Order("title").Find(&entries).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, entries)
}

// @Summary Create a lore entry
// @Description DM only
// @Tags lore
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param entry body LoreRequest true "Entry"
// @Success 201 {object} Response{data=LoreEntry}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id}/lore [post]
func createLoreHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req LoreRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Title == nil {
		renderError(w, r, taverna.Invalid("title is required"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	l := LoreEntry{CampaignID: campaignID, AuthorID: id.UserID}
	req.apply(&l)

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireDM(tx, campaignID, id); err != nil {
			return err
		}
		return tx.Create(&l).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusCreated, l)
}

// @Summary Get a lore entry
// @Tags lore
// @Produce json
// @Security BearerAuth
// @Param id path int true "Lore entry ID"
// @Success 200 {object} Response{data=LoreEntry}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /lore/{id} [get]
func getLoreHandler(w http.ResponseWriter, r *http.Request) {
	loreID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	l, err := loreAccess(db, loreID, identityFrom(r), false)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, l)
}

// @Summary Update a lore entry
// @Description DM only
// @Tags lore
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Lore entry ID"
// @Param entry body LoreRequest true "Fields to change"
// @Success 200 {object} Response{data=LoreEntry}
// @Failure 403 {object} Response
// @Router /lore/{id} [patch]
func updateLoreHandler(w http.ResponseWriter, r *http.Request) {
	loreID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req LoreRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var l *LoreEntry
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		l, err = loreAccess(tx, loreID, identityFrom(r), true)
		if err != nil {
			return err
		}
		req.apply(l)
		return tx.Save(l).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusOK, l)
}

// @Summary Delete a lore entry
// @Description DM only
// @Tags lore
// @Produce json
// @Security BearerAuth
// @Param id path int true "Lore entry ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /lore/{id} [delete]
func deleteLoreHandler(w http.ResponseWriter, r *http.Request) {
	loreID, err := idParam(r, "id")
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
		l, err := loreAccess(tx, loreID, identityFrom(r), true)
		if err != nil {
			return err
		}
		return tx.Delete(&LoreEntry{}, l.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusOK, map[string]int64{"deleted": loreID})
}
