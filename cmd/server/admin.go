package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// Audit actions.
const (
	auditUserUpdated     = "user.updated"
	auditUserDeleted     = "user.deleted"
	auditCampaignStatus  = "campaign.status"
	auditCampaignDeleted = "campaign.deleted"
)

const (
	defaultAdminPage = 50
	maxAdminPage     = 500
)

type AdminStats struct {
	Users        int64                            `json:"users"`
	Admins       int64                            `json:"admins"`
	Disabled     int64                            `json:"disabled"`
	Campaigns    map[taverna.CampaignStatus]int64 `json:"campaigns"`
	Sessions     int64                            `json:"sessions"`
	LiveSessions int64                            `json:"liveSessions"`
	Characters   int64                            `json:"characters"`
	Messages     int64                            `json:"messages"`
	LogEntries   int64                            `json:"logEntries"`
}

type AdminUserRequest struct {
	Role     *taverna.PlatformRole `json:"role,omitempty" example:"ADMIN"`
	Disabled *bool                 `json:"disabled,omitempty"`
}

type AdminCampaignStatusRequest struct {
	Status taverna.CampaignStatus `json:"status" validate:"required" example:"ARCHIVED"`
}

// AdminRoutes is the back office. Every route needs the ADMIN platform role.
func AdminRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)

	r.Get("/stats", adminStatsHandler)
	r.Get("/users", adminListUsersHandler)
	r.Patch("/users/{id}", adminUpdateUserHandler)
	r.Delete("/users/{id}", adminDeleteUserHandler)
	r.Get("/campaigns", adminListCampaignsHandler)
	r.Patch("/campaigns/{id}/status", adminCampaignStatusHandler)
	r.Delete("/campaigns/{id}", adminDeleteCampaignHandler)
	r.Get("/audit-log", adminAuditLogHandler)

	return r
}

// audit records an admin mutation. Call it inside the mutation's transaction.
func audit(tx *gorm.DB, actor Identity, action, targetType string, targetID int64, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return tx.Create(&AuditLog{
		ActorID:    actor.UserID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    datatypes.JSONMap(details),
	}).Error
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = queryInt(r, "limit", defaultAdminPage)
	if limit < 1 || limit > maxAdminPage {
		limit = defaultAdminPage
	}
	offset = queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func collectStats(db *gorm.DB) (AdminStats, error) {
	st := AdminStats{Campaigns: map[taverna.CampaignStatus]int64{}}

	counts := []struct {
		q   *gorm.DB
		out *int64
	}{
		{db.Model(&User{}), &st.Users},
		{db.Model(&User{}).Where("role = ?", taverna.PlatformAdmin), &st.Admins},
		{db.Model(&User{}).Where("disabled = ?", true), &st.Disabled},
		{db.Model(&GameSession{}), &st.Sessions},
		{db.Model(&GameSession{}).Where("status = ?", taverna.SessionLive), &st.LiveSessions},
		{db.Model(&Character{}), &st.Characters},
		{db.Model(&ChatMessage{}), &st.Messages},
		{db.Model(&CombatLogEntry{}), &st.LogEntries},
	}
	for _, c := range counts {
		if err := c.q.Count(c.out).Error; err != nil {
			return st, err
		}
	}

	var rows []struct {
		Status taverna.CampaignStatus
		N      int64
	}
	if err := db.Model(&Campaign{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return st, err
	}
	for _, row := range rows {
		st.Campaigns[row.Status] = row.N
	}
	return st, nil
}

// @Summary Platform statistics
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=AdminStats}
// @Failure 403 {object} Response
// @Router /admin/stats [get]
func adminStatsHandler(w http.ResponseWriter, r *http.Request) {
	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	st, err := collectStats(db)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, st)
}

// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param q query string false "Name or email contains"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} Response{data=[]User}
// @Failure 403 {object} Response
// @Router /admin/users [get]
func adminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	limit, offset := pageParams(r)
	q := db.Model(&User{})
	if term := strings.ToLower(strings.TrimSpace(ugcPolicy.Sanitize(r.URL.Query().Get("q")))); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var users []User
	if err := q.Order("id").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, users)
}

// @Summary Change a user's role or disable them
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param user body AdminUserRequest true "Fields to change"
// @Success 200 {object} Response{data=User}
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Router /admin/users/{id} [patch]
func adminUpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req AdminUserRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Role != nil && !req.Role.Valid() {
		renderError(w, r, taverna.Invalid("unknown role %q", *req.Role))
		return
	}

	admin := identityFrom(r)
	if userID == admin.UserID {
		renderError(w, r, taverna.Conflict("admins cannot change their own account here"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var u User
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, userID).Error; err != nil {
			return dbError(err, "user")
		}

		details := map[string]any{}
		updates := map[string]any{}
		if req.Role != nil && *req.Role != u.Role {
			details["role"] = map[string]any{"from": u.Role, "to": *req.Role}
			updates["role"] = *req.Role
		}
		if req.Disabled != nil && *req.Disabled != u.Disabled {
			details["disabled"] = *req.Disabled
			updates["disabled"] = *req.Disabled
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&u).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.First(&u, userID).Error; err != nil {
			return err
		}
		return audit(tx, admin, auditUserUpdated, "user", userID, details)
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	if u.Disabled {
		revoke(r.Context(), 0, userID)
	}
	log.Infow("admin updated user", "admin_id", admin.UserID, "user_id", userID)
	renderData(w, http.StatusOK, u)
}

// @Summary Delete a user
// @Description Users who run a campaign must hand it off or delete it first.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Router /admin/users/{id} [delete]
func adminDeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	admin := identityFrom(r)
	if userID == admin.UserID {
		renderError(w, r, taverna.Conflict("admins cannot delete themselves"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var u User
		if err := tx.First(&u, userID).Error; err != nil {
			return dbError(err, "user")
		}

		var owned int64
		if err := tx.Model(&Campaign{}).Where("dm_id = ?", userID).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return taverna.Conflict("user is the DM of %d campaign(s)", owned)
		}

		var campaignIDs []int64
		if err := tx.Model(&CampaignMember{}).Where("user_id = ?", userID).Pluck("campaign_id", &campaignIDs).Error; err != nil {
			return err
		}
		for _, cid := range campaignIDs {
			if err := removeMember(tx, cid, userID); err != nil {
				return err
			}
		}

		if err := tx.Delete(&User{}, userID).Error; err != nil {
			return err
		}
		return audit(tx, admin, auditUserDeleted, "user", userID, map[string]any{
			"email":     u.Email,
			"campaigns": len(campaignIDs),
		})
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	revoke(r.Context(), 0, userID)
	log.Infow("admin deleted user", "admin_id", admin.UserID, "user_id", userID)
	renderData(w, http.StatusOK, map[string]int64{"deleted": userID})
}

// @Summary List all campaigns
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} Response{data=[]Campaign}
// @Failure 403 {object} Response
// @Router /admin/campaigns [get]
func adminListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	limit, offset := pageParams(r)
	q := db.Model(&Campaign{})
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := taverna.CampaignStatus(strings.ToUpper(ugcPolicy.Sanitize(raw)))
		if !status.Valid() {
			renderError(w, r, taverna.Invalid("unknown campaign status %q", status))
			return
		}
		q = q.Where("status = ?", status)
	}

	var campaigns []Campaign
	if err := q.Order("id").Limit(limit).Offset(offset).Find(&campaigns).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, campaigns)
}

// @Summary Set a campaign's status
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param status body AdminCampaignStatusRequest true "Status"
// @Success 200 {object} Response{data=Campaign}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /admin/campaigns/{id}/status [patch]
func adminCampaignStatusHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req AdminCampaignStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if !req.Status.Valid() {
		renderError(w, r, taverna.Invalid("unknown campaign status %q", req.Status))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	admin := identityFrom(r)
	var c *Campaign
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = loadCampaign(tx, campaignID)
		if err != nil {
			return err
		}
		from := c.Status
		if err := tx.Model(c).Update("status", req.Status).Error; err != nil {
			return err
		}
		c.Status = req.Status
		return audit(tx, admin, auditCampaignStatus, "campaign", campaignID, map[string]any{
			"from": from,
			"to":   req.Status,
		})
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	publish(r.Context(), campaignID, EventCampaignUpdated, map[string]any{"status": c.Status})
	renderData(w, http.StatusOK, c)
}

// @Summary Delete any campaign
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /admin/campaigns/{id} [delete]
func adminDeleteCampaignHandler(w http.ResponseWriter, r *http.Request) {
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

	admin := identityFrom(r)
	err = db.Transaction(func(tx *gorm.DB) error {
		c, err := loadCampaign(tx, campaignID)
		if err != nil {
			return err
		}
		if err := deleteCampaign(tx, campaignID); err != nil {
			return err
		}
		return audit(tx, admin, auditCampaignDeleted, "campaign", campaignID, map[string]any{
			"name":  c.Name,
			"dm_id": c.DMID,
		})
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	revoke(r.Context(), campaignID, 0)
	log.Infow("admin deleted campaign", "admin_id", admin.UserID, "campaign_id", campaignID)
	renderData(w, http.StatusOK, map[string]int64{"deleted": campaignID})
}

// @Summary Read the audit log
// @Description Newest first
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} Response{data=[]AuditLog}
// @Failure 403 {object} Response
// @Router /admin/audit-log [get]
func adminAuditLogHandler(w http.ResponseWriter, r *http.Request) {
	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	limit, offset := pageParams(r)
	var rows []AuditLog
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, rows)
}
