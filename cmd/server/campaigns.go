package main

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/ifo/sanic"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

var inviteWorker = sanic.NewWorker7()

// newInviteCode is a sanic id with a random tail so codes can't be guessed
// from creation time.
func newInviteCode() string {
	id := inviteWorker.NextID()
	tail := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return inviteWorker.IDString(id) + tail
}

type CreateCampaignRequest struct {
	Name        string `json:"name" validate:"required,max=100" example:"Curse of the Pale Tower"`
	Description string `json:"description" validate:"max=2000"`
	MaxPlayers  int    `json:"maxPlayers" validate:"omitempty,min=1,max=20" example:"6"`
}

type UpdateCampaignRequest struct {
	Name        *string                 `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string                 `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *taverna.CampaignStatus `json:"status,omitempty"`
	MaxPlayers  *int                    `json:"maxPlayers,omitempty" validate:"omitempty,min=1,max=20"`
}

type JoinCampaignRequest struct {
	InviteCode string `json:"inviteCode" validate:"required,max=64"`
}

// CampaignSummary is a campaign as one member sees it.
type CampaignSummary struct {
	Campaign
	Role        taverna.Role `json:"role"`
	MemberCount int64        `json:"memberCount"`
}

func summarize(c Campaign, role taverna.Role, members int64) CampaignSummary {
	if role != taverna.RoleDM {
		c.InviteCode = ""
	}
	return CampaignSummary{Campaign: c, Role: role, MemberCount: members}
}

func countMembers(db *gorm.DB, campaignID int64) (int64, error) {
	var n int64
	err := db.Model(&CampaignMember{}).Where("campaign_id = ?", campaignID).Count(&n).Error
	return n, err
}

func createCampaign(db *gorm.DB, userID int64, req CreateCampaignRequest) (*Campaign, error) {
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = taverna.DefaultMaxPlayers
	}

	c := Campaign{
		Name:        ugcPolicy.Sanitize(req.Name),
		Description: contentPolicy.Sanitize(req.Description),
		Status:      taverna.CampaignActive,
		DMID:        userID,
		MaxPlayers:  maxPlayers,
		InviteCode:  newInviteCode(),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			return dbError(err, "campaign")
		}
		return tx.Create(&CampaignMember{CampaignID: c.ID, UserID: userID, Role: taverna.RoleDM}).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// joinCampaign adds userID as a player of the campaign holding code.
func joinCampaign(db *gorm.DB, userID int64, code string) (*Campaign, error) {
	var c Campaign
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invite_code = ?", code).First(&c).Error; err != nil {
			if dbErr := dbError(err, "campaign"); taverna.KindOf(dbErr) == taverna.KindNotFound {
				return taverna.NotFound("invalid invite code")
			}
			return err
		}
		if c.Status == taverna.CampaignArchived || c.Status == taverna.CampaignCompleted {
			return taverna.Conflict("campaign is not accepting players")
		}

		var already int64
		if err := tx.Model(&CampaignMember{}).Where("campaign_id = ? AND user_id = ?", c.ID, userID).Count(&already).Error; err != nil {
			return err
		}
		members, err := countMembers(tx, c.ID)
		if err != nil {
			return err
		}
		if err := taverna.CheckJoin(members, c.MaxPlayers, already > 0); err != nil {
			return err
		}

		m := CampaignMember{CampaignID: c.ID, UserID: userID, Role: taverna.RolePlayer}
		if err := tx.Create(&m).Error; err != nil {
			if isDuplicate(err) {
				return taverna.ErrAlreadyMember
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// memberCampaign is a campaign row joined with the caller's membership.
type memberCampaign struct {
	Campaign   `gorm:"embedded"`
	MemberRole taverna.Role
}

func listCampaigns(db *gorm.DB, userID int64) ([]CampaignSummary, error) {
	var rows []memberCampaign
	err := db.Model(&Campaign{}).
		Select("campaigns.*, campaign_members.role AS member_role").
		Joins("JOIN campaign_members ON campaign_members.campaign_id = campaigns.id").
		Where("campaign_members.user_id = ?", userID).
		Order("campaign_members.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []CampaignSummary{}, nil
	}

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var counts []struct {
		CampaignID int64
		Members    int64
	}
	err = db.Model(&CampaignMember{}).
		Select("campaign_id, COUNT(*) AS members").
		Where("campaign_id IN ?", ids).
		Group("campaign_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	members := make(map[int64]int64, len(counts))
	for _, c := range counts {
		members[c.CampaignID] = c.Members
	}

	out := make([]CampaignSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, summarize(row.Campaign, row.MemberRole, members[row.ID]))
	}
	return out, nil
}

// @Summary List my campaigns
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]CampaignSummary}
// @Failure 401 {object} Response
// @Router /campaigns [get]
func listCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	out, err := listCampaigns(db, identityFrom(r).UserID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, out)
}

// @Summary Create a campaign
// @Description The caller becomes the campaign's DM
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param campaign body CreateCampaignRequest true "Campaign"
// @Success 201 {object} Response{data=CampaignSummary}
// @Failure 400 {object} Response
// @Router /campaigns [post]
func createCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	c, err := createCampaign(db, identityFrom(r).UserID, req)
	if err != nil {
		renderError(w, r, err)
		return
	}

	log.Infow("campaign created", "campaign_id", c.ID, "dm_id", c.DMID)
	renderData(w, http.StatusCreated, summarize(*c, taverna.RoleDM, 1))
}

// @Summary Join a campaign
// @Description Join as a player with an invite code
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param join body JoinCampaignRequest true "Invite code"
// @Success 200 {object} Response{data=CampaignSummary}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /campaigns/join [post]
func joinCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var req JoinCampaignRequest
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
	c, err := joinCampaign(db, id.UserID, strings.TrimSpace(req.InviteCode))
	if err != nil {
		renderError(w, r, err)
		return
	}

	n, err := countMembers(db, c.ID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	log.Infow("user joined campaign", "campaign_id", c.ID, "user_id", id.UserID)
	publish(r.Context(), c.ID, EventCampaignUpdated, map[string]any{"joined": id.UserID})
	renderData(w, http.StatusOK, summarize(*c, taverna.RolePlayer, n))
}

// @Summary Get a campaign
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response{data=CampaignSummary}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /campaigns/{id} [get]
func getCampaignHandler(w http.ResponseWriter, r *http.Request) {
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

	n, err := countMembers(db, campaignID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, summarize(a.Campaign, a.Member.Role, n))
}

// @Summary Update campaign settings
// @Description DM only. Lowering maxPlayers does not remove anyone.
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param campaign body UpdateCampaignRequest true "Fields to change"
// @Success 200 {object} Response{data=CampaignSummary}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id} [patch]
func updateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req UpdateCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		renderError(w, r, taverna.Invalid("unknown campaign status %q", *req.Status))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var c Campaign
	err = db.Transaction(func(tx *gorm.DB) error {
		a, err := requireDM(tx, campaignID, identityFrom(r))
		if err != nil {
			return err
		}
		c = a.Campaign

		updates := map[string]any{}
		if req.Name != nil {
			updates["name"] = ugcPolicy.Sanitize(*req.Name)
		}
		if req.Description != nil {
			updates["description"] = contentPolicy.Sanitize(*req.Description)
		}
		if req.Status != nil {
			updates["status"] = *req.Status
		}
		if req.MaxPlayers != nil {
			updates["max_players"] = *req.MaxPlayers
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&c).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&c, c.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	n, err := countMembers(db, campaignID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	publish(r.Context(), campaignID, EventCampaignUpdated, nil)
	renderData(w, http.StatusOK, summarize(c, taverna.RoleDM, n))
}

// @Summary Delete a campaign
// @Description DM only. Removes everything the campaign owns.
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id} [delete]
func deleteCampaignHandler(w http.ResponseWriter, r *http.Request) {
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

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireDM(tx, campaignID, identityFrom(r)); err != nil {
			return err
		}
		return deleteCampaign(tx, campaignID)
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	revoke(r.Context(), campaignID, 0)
	log.Infow("campaign deleted", "campaign_id", campaignID, "user_id", identityFrom(r).UserID)
	renderData(w, http.StatusOK, map[string]int64{"deleted": campaignID})
}

// @Summary Regenerate invite code
// @Description DM only. The old code stops working.
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id}/invite-code [post]
func regenerateInviteHandler(w http.ResponseWriter, r *http.Request) {
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

	code := newInviteCode()
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireDM(tx, campaignID, identityFrom(r)); err != nil {
			return err
		}
		return tx.Model(&Campaign{}).Where("id = ?", campaignID).Update("invite_code", code).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusOK, map[string]string{"inviteCode": code})
}

// @Summary List campaign members
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response{data=[]CampaignMember}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/members [get]
func listMembersHandler(w http.ResponseWriter, r *http.Request) {
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

	var members []CampaignMember
	if err := db.Preload("User").Where("campaign_id = ?", campaignID).Order("id").Find(&members).Error; err != nil {
		renderError(w, r, err)
		return
	}
	for i := range members {
		if members[i].User != nil {
			members[i].User.Preferences = nil
		}
	}
	renderData(w, http.StatusOK, members)
}

// @Summary Remove a member
// @Description The DM removes a player, or a player leaves. Their characters go with them.
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param userId path int true "User ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Router /campaigns/{id}/members/{userId} [delete]
func removeMemberHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	userID, err := idParam(r, "userId")
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
	err = db.Transaction(func(tx *gorm.DB) error {
		a, err := requireMember(tx, campaignID, id)
		if err != nil {
			return err
		}
		if userID != id.UserID && !a.IsDM() {
			return taverna.ErrNotDM
		}
		if userID == a.Campaign.DMID {
			return taverna.Conflict("the DM cannot leave their own campaign")
		}
		return removeMember(tx, campaignID, userID)
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	revoke(r.Context(), campaignID, userID)
	publish(r.Context(), campaignID, EventCampaignUpdated, map[string]any{"left": userID})
	renderData(w, http.StatusOK, map[string]int64{"removed": userID})
}
