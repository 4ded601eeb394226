package main

import (
	"encoding/json"
	"net/http"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// CharacterRequest creates or updates a character. Sheet fields that are
// left out keep their current (or default) values.
type CharacterRequest struct {
	Name  *string         `json:"name,omitempty" validate:"omitempty,min=1,max=100" example:"Elowen"`
	Sheet json.RawMessage `json:"sheet,omitempty" swaggertype:"object"`
}

// mergeSheet applies a partial sheet onto base and validates the result.
func mergeSheet(base taverna.CharacterSheet, patch json.RawMessage) (taverna.CharacterSheet, error) {
	if len(patch) > 0 && string(patch) != "null" {
		if err := json.Unmarshal(patch, &base); err != nil {
			return base, taverna.Invalid("invalid character sheet")
		}
	}
	base.Normalize()
	base.Notes = contentPolicy.Sanitize(base.Notes)
	if err := taverna.Validate(base); err != nil {
		return base, err
	}
	return base, nil
}

func loadCharacter(db *gorm.DB, id int64) (*Character, error) {
	var c Character
	if err := db.First(&c, id).Error; err != nil {
		return nil, dbError(err, "character")
	}
	return &c, nil
}

// characterAccess loads a character for reading, or for writing when write
// is set, which needs the owner or the DM.
func characterAccess(db *gorm.DB, characterID int64, id Identity, write bool) (*Character, error) {
	c, err := loadCharacter(db, characterID)
	if err != nil {
		return nil, err
	}
	a, err := requireMember(db, c.CampaignID, id)
	if err != nil {
		return nil, err
	}
	if write && c.UserID != id.UserID && !a.IsDM() {
		return nil, taverna.Forbidden("only the owner or the dungeon master can change this character")
	}
	return c, nil
}

// @Summary List characters
// @Tags characters
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response{data=[]Character}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/characters [get]
func listCharactersHandler(w http.ResponseWriter, r *http.Request) {
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

	var chars []Character
	if err := db.Where("campaign_id = ?", campaignID).Order("id").Find(&chars).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, chars)
}

// @Summary Create a character
// @Description The caller owns the new character
// @Tags characters
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param character body CharacterRequest true "Character"
// @Success 201 {object} Response{data=Character}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id}/characters [post]
func createCharacterHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req CharacterRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Name == nil {
		renderError(w, r, taverna.Invalid("name is required"))
		return
	}

	sheet, err := mergeSheet(taverna.NewCharacterSheet(), req.Sheet)
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
	c := Character{
		CampaignID: campaignID,
		UserID:     id.UserID,
		Name:       ugcPolicy.Sanitize(*req.Name),
		Sheet:      datatypes.NewJSONType(sheet),
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireMember(tx, campaignID, id); err != nil {
			return err
		}
		return tx.Create(&c).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusCreated, c)
}

// @Summary Get a character
// @Tags characters
// @Produce json
// @Security BearerAuth
// @Param id path int true "Character ID"
// @Success 200 {object} Response{data=Character}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /characters/{id} [get]
func getCharacterHandler(w http.ResponseWriter, r *http.Request) {
	characterID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	c, err := characterAccess(db, characterID, identityFrom(r), false)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, c)
}

// @Summary Update a character
// @Description Owner or DM. The sheet is merged field by field.
// @Tags characters
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Character ID"
// @Param character body CharacterRequest true "Fields to change"
// @Success 200 {object} Response{data=Character}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /characters/{id} [patch]
func updateCharacterHandler(w http.ResponseWriter, r *http.Request) {
	characterID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req CharacterRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var c *Character
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = characterAccess(tx, characterID, identityFrom(r), true)
		if err != nil {
			return err
		}

		sheet, err := mergeSheet(c.Sheet.Data(), req.Sheet)
		if err != nil {
			return err
		}
		c.Sheet = datatypes.NewJSONType(sheet)
		if req.Name != nil {
			c.Name = ugcPolicy.Sanitize(*req.Name)
		}
		return tx.Save(c).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusOK, c)
}

// @Summary Delete a character
// @Tags characters
// @Produce json
// @Security BearerAuth
// @Param id path int true "Character ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /characters/{id} [delete]
func deleteCharacterHandler(w http.ResponseWriter, r *http.Request) {
	characterID, err := idParam(r, "id")
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
		c, err := characterAccess(tx, characterID, identityFrom(r), true)
		if err != nil {
			return err
		}
		return tx.Delete(&Character{}, c.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusOK, map[string]int64{"deleted": characterID})
}
