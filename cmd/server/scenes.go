package main

import (
	"encoding/json"
	"net/http"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

const maxSceneCells = 200

type CreateSceneRequest struct {
	Name          string `json:"name" validate:"required,max=100" example:"Sunken Crypt"`
	Width         int    `json:"width" validate:"min=1,max=200" example:"30"`
	Height        int    `json:"height" validate:"min=1,max=200" example:"20"`
	GridSize      int    `json:"gridSize,omitempty" validate:"omitempty,min=10,max=200" example:"50"`
	BackgroundURL string `json:"backgroundUrl,omitempty" validate:"omitempty,url,max=512"`
}

// UpdateSceneRequest changes a scene. Resizing keeps the fog as it is until
// it is reset.
type UpdateSceneRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Width         *int    `json:"width,omitempty" validate:"omitempty,min=1,max=200"`
	Height        *int    `json:"height,omitempty" validate:"omitempty,min=1,max=200"`
	GridSize      *int    `json:"gridSize,omitempty" validate:"omitempty,min=10,max=200"`
	BackgroundURL *string `json:"backgroundUrl,omitempty" validate:"omitempty,url,max=512"`
}

type FogRequest struct {
	Cells []taverna.Cell `json:"cells" validate:"max=40000"`
}

type FogResponse struct {
	FogRevealed taverna.FogGrid `json:"fogRevealed"`
	Changed     int             `json:"changed"`
	Revealed    int             `json:"revealed"`
}

type TokenRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=100" example:"Ogre"`
	X           *int    `json:"x,omitempty" validate:"omitempty,gte=0,lte=10000"`
	Y           *int    `json:"y,omitempty" validate:"omitempty,gte=0,lte=10000"`
	Size        *int    `json:"size,omitempty" validate:"omitempty,min=1,max=10"`
	Color       *string `json:"color,omitempty" validate:"omitempty,max=32"`
	Hidden      *bool   `json:"hidden,omitempty"`
	CharacterID *int64  `json:"characterId,omitempty"`
}

type DrawingRequest struct {
	Shape  string          `json:"shape" validate:"required,max=32" example:"line"`
	Color  string          `json:"color,omitempty" validate:"max=32"`
	DMOnly bool            `json:"dmOnly"`
	Data   json.RawMessage `json:"data" swaggertype:"object"`
}

// withContents loads the scene's tokens and drawings, leaving out what a
// player may not see.
func withContents(db *gorm.DB, s *Scene, isDM bool) error {
	tq := db.Where("scene_id = ?", s.ID)
	dq := db.Where("scene_id = ?", s.ID)
	if !isDM {
		tq = tq.Where("hidden = ?", false)
		dq = dq.Where("dm_only = ?", false)
	}

	s.Tokens = []Token{}
	if err := tq.Order("id").Find(&s.Tokens).Error; err != nil {
		return err
	}
	s.Drawings = []Drawing{}
	return dq.Order("id").Find(&s.Drawings).Error
}

func loadToken(db *gorm.DB, sceneID, tokenID int64) (*Token, error) {
	var t Token
	if err := db.Where("id = ? AND scene_id = ?", tokenID, sceneID).First(&t).Error; err != nil {
		return nil, dbError(err, "token")
	}
	return &t, nil
}

func sceneChanged(r *http.Request, s *Scene) {
	publish(r.Context(), s.CampaignID, EventSceneUpdated, map[string]int64{"sceneId": s.ID})
}

// @Summary List scenes
// @Tags scenes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response{data=[]Scene}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/scenes [get]
func listScenesHandler(w http.ResponseWriter, r *http.Request) {
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

	var scenes []Scene
	if err := db.Where("campaign_id = ?", campaignID).Order("id").Find(&scenes).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, scenes)
}

// @Summary Create a scene
// @Description DM only. The fog starts fully hidden.
// @Tags scenes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param scene body CreateSceneRequest true "Scene"
// @Success 201 {object} Response{data=Scene}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id}/scenes [post]
func createSceneHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req CreateSceneRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	s := Scene{
		CampaignID:    campaignID,
		Name:          ugcPolicy.Sanitize(req.Name),
		Width:         req.Width,
		Height:        req.Height,
		GridSize:      req.GridSize,
		BackgroundURL: req.BackgroundURL,
		Fog:           datatypes.NewJSONType(taverna.NewFogGrid(req.Height, req.Width)),
	}
	if s.GridSize == 0 {
		s.GridSize = 50
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireDM(tx, campaignID, identityFrom(r)); err != nil {
			return err
		}
		return tx.Create(&s).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, &s)
	renderData(w, http.StatusCreated, s)
}

// @Summary Get a scene
// @Description Players do not see hidden tokens or DM-only drawings
// @Tags scenes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Success 200 {object} Response{data=Scene}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /scenes/{id} [get]
func getSceneHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	s, a, err := sceneAccess(db, sceneID, identityFrom(r), false)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := withContents(db, s, a.IsDM()); err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, s)
}

// @Summary Update a scene
// @Description DM only
// @Tags scenes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Param scene body UpdateSceneRequest true "Fields to change"
// @Success 200 {object} Response{data=Scene}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /scenes/{id} [patch]
func updateSceneHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req UpdateSceneRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var s *Scene
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sceneAccess(tx, sceneID, identityFrom(r), true)
		if err != nil {
			return err
		}
		if req.Name != nil {
			s.Name = ugcPolicy.Sanitize(*req.Name)
		}
		if req.Width != nil {
			s.Width = *req.Width
		}
		if req.Height != nil {
			s.Height = *req.Height
		}
		if req.GridSize != nil {
			s.GridSize = *req.GridSize
		}
		if req.BackgroundURL != nil {
			s.BackgroundURL = *req.BackgroundURL
		}
		return tx.Save(s).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusOK, s)
}

// @Summary Delete a scene
// @Description DM only. Removes its tokens and drawings.
// @Tags scenes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /scenes/{id} [delete]
func deleteSceneHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var s *Scene
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sceneAccess(tx, sceneID, identityFrom(r), true)
		if err != nil {
			return err
		}
		return deleteScene(tx, s.ID)
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusOK, map[string]int64{"deleted": sceneID})
}

// @Summary Reveal fog
// @Description DM only. Cells outside the grid are ignored.
// @Tags scenes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Param fog body FogRequest true "Cells to reveal"
// @Success 200 {object} Response{data=FogResponse}
// @Failure 403 {object} Response
// @Router /scenes/{id}/fog [post]
func revealFogHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req FogRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var s *Scene
	var out FogResponse
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sceneAccess(tx, sceneID, identityFrom(r), true)
		if err != nil {
			return err
		}

		grid := s.Fog.Data()
		out.Changed = grid.Reveal(req.Cells)
		out.Revealed = grid.Revealed()
		out.FogRevealed = grid
		if out.Changed == 0 {
			return nil
		}
		s.Fog = datatypes.NewJSONType(grid)
		return tx.Model(s).Update("fog", s.Fog).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	if out.Changed > 0 {
		sceneChanged(r, s)
	}
	renderData(w, http.StatusOK, out)
}

// @Summary Reset fog
// @Description DM only. Hides every cell, sized to the scene's current dimensions.
// @Tags scenes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Success 200 {object} Response{data=FogResponse}
// @Failure 403 {object} Response
// @Router /scenes/{id}/fog [delete]
func resetFogHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var s *Scene
	var grid taverna.FogGrid
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sceneAccess(tx, sceneID, identityFrom(r), true)
		if err != nil {
			return err
		}
		grid = taverna.NewFogGrid(min(s.Height, maxSceneCells), min(s.Width, maxSceneCells))
		s.Fog = datatypes.NewJSONType(grid)
		return tx.Model(s).Update("fog", s.Fog).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusOK, FogResponse{FogRevealed: grid})
}

// @Summary Place a token
// @Description DM only
// @Tags scenes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Param token body TokenRequest true "Token"
// @Success 201 {object} Response{data=Token}
// @Failure 403 {object} Response
// @Router /scenes/{id}/tokens [post]
func createTokenHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	t := Token{SceneID: sceneID, Size: 1}
	applyToken(&t, req)

	var s *Scene
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sceneAccess(tx, sceneID, identityFrom(r), true)
		if err != nil {
			return err
		}
		return tx.Create(&t).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusCreated, t)
}

func applyToken(t *Token, req TokenRequest) {
	if req.Name != nil {
		t.Name = ugcPolicy.Sanitize(*req.Name)
	}
	if req.X != nil {
		t.X = *req.X
	}
	if req.Y != nil {
		t.Y = *req.Y
	}
	if req.Size != nil {
		t.Size = *req.Size
	}
	if req.Color != nil {
		t.Color = ugcPolicy.Sanitize(*req.Color)
	}
	if req.Hidden != nil {
		t.Hidden = *req.Hidden
	}
	if req.CharacterID != nil {
		t.CharacterID = req.CharacterID
	}
}

// ownsToken reports whether the token stands for one of the user's
// characters.
func ownsToken(db *gorm.DB, t *Token, userID int64) (bool, error) {
	if t.CharacterID == nil {
		return false, nil
	}
	var n int64
	err := db.Model(&Character{}).Where("id = ? AND user_id = ?", *t.CharacterID, userID).Count(&n).Error
	return n > 0, err
}

// @Summary Update a token
// @Description The DM changes anything. A player may only move the token of their own character.
// @Tags scenes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Param tokenId path int true "Token ID"
// @Param token body TokenRequest true "Fields to change"
// @Success 200 {object} Response{data=Token}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /scenes/{id}/tokens/{tokenId} [patch]
func updateTokenHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	tokenID, err := idParam(r, "tokenId")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req TokenRequest
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
	var s *Scene
	var t *Token
	err = db.Transaction(func(tx *gorm.DB) error {
		var a access
		var err error
		s, a, err = sceneAccess(tx, sceneID, id, false)
		if err != nil {
			return err
		}
		t, err = loadToken(tx, sceneID, tokenID)
		if err != nil {
			return err
		}

		if !a.IsDM() {
			if t.Hidden {
				return taverna.NotFound("token not found")
			}
			own, err := ownsToken(tx, t, id.UserID)
			if err != nil {
				return err
			}
			if !own {
				return taverna.ErrNotDM
			}
			req = TokenRequest{X: req.X, Y: req.Y}
		}

		applyToken(t, req)
		return tx.Save(t).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusOK, t)
}

// @Summary Remove a token
// @Description DM only
// @Tags scenes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Param tokenId path int true "Token ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /scenes/{id}/tokens/{tokenId} [delete]
func deleteTokenHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	tokenID, err := idParam(r, "tokenId")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var s *Scene
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		s, _, err = sceneAccess(tx, sceneID, identityFrom(r), true)
		if err != nil {
			return err
		}
		t, err := loadToken(tx, sceneID, tokenID)
		if err != nil {
			return err
		}
		return tx.Delete(&Token{}, t.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusOK, map[string]int64{"deleted": tokenID})
}

// @Summary Add a drawing
// @Description Any member. Only the DM can make DM-only drawings.
// @Tags scenes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Param drawing body DrawingRequest true "Drawing"
// @Success 201 {object} Response{data=Drawing}
// @Failure 403 {object} Response
// @Router /scenes/{id}/drawings [post]
func createDrawingHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req DrawingRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if len(req.Data) > 0 && !json.Valid(req.Data) {
		renderError(w, r, taverna.Invalid("data must be JSON"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	d := Drawing{
		SceneID:  sceneID,
		AuthorID: id.UserID,
		DMOnly:   req.DMOnly,
		Shape:    ugcPolicy.Sanitize(req.Shape),
		Color:    ugcPolicy.Sanitize(req.Color),
		Data:     datatypes.JSON(req.Data),
	}
	if len(d.Data) == 0 {
		d.Data = datatypes.JSON("null")
	}

	var s *Scene
	err = db.Transaction(func(tx *gorm.DB) error {
		var a access
		var err error
		s, a, err = sceneAccess(tx, sceneID, id, false)
		if err != nil {
			return err
		}
		if d.DMOnly && !a.IsDM() {
			return taverna.ErrNotDM
		}
		return tx.Create(&d).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusCreated, d)
}

// @Summary Remove a drawing
// @Description Author or DM
// @Tags scenes
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scene ID"
// @Param drawingId path int true "Drawing ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /scenes/{id}/drawings/{drawingId} [delete]
func deleteDrawingHandler(w http.ResponseWriter, r *http.Request) {
	sceneID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	drawingID, err := idParam(r, "drawingId")
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
	var s *Scene
	err = db.Transaction(func(tx *gorm.DB) error {
		var a access
		var err error
		s, a, err = sceneAccess(tx, sceneID, id, false)
		if err != nil {
			return err
		}

		var d Drawing
		if err := tx.Where("id = ? AND scene_id = ?", drawingID, sceneID).First(&d).Error; err != nil {
			return dbError(err, "drawing")
		}
		if d.AuthorID != id.UserID && !a.IsDM() {
			return taverna.Forbidden("only the author or the dungeon master can erase a drawing")
		}
		return tx.Delete(&Drawing{}, d.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	sceneChanged(r, s)
	renderData(w, http.StatusOK, map[string]int64{"deleted": drawingID})
}
