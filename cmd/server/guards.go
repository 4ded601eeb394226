package main

import (
	"errors"

	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// access is what a caller may do inside one campaign.
type access struct {
	Campaign Campaign
	Member   CampaignMember
}

func (a access) IsDM() bool {
	return a.Member.Role == taverna.RoleDM
}

func (a access) UserID() int64 {
	return a.Member.UserID
}

func loadCampaign(db *gorm.DB, campaignID int64) (*Campaign, error) {
	var c Campaign
	if err := db.First(&c, campaignID).Error; err != nil {
		return nil, dbError(err, "campaign")
	}
	return &c, nil
}

// requireMember loads the campaign and the caller's membership. Campaigns
// the caller is not in are reported as forbidden, not missing.
func requireMember(db *gorm.DB, campaignID int64, id Identity) (access, error) {
	c, err := loadCampaign(db, campaignID)
	if err != nil {
		return access{}, err
	}

	var m CampaignMember
	err = db.Where("campaign_id = ? AND user_id = ?", campaignID, id.UserID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return access{}, taverna.ErrNotMember
		}
		return access{}, err
	}

	return access{Campaign: *c, Member: m}, nil
}

// requireDM is requireMember plus the DM role.
func requireDM(db *gorm.DB, campaignID int64, id Identity) (access, error) {
	a, err := requireMember(db, campaignID, id)
	if err != nil {
		return a, err
	}
	if !a.IsDM() {
		return a, taverna.ErrNotDM
	}
	return a, nil
}

func loadSession(db *gorm.DB, sessionID int64) (*GameSession, error) {
	var s GameSession
	if err := db.First(&s, sessionID).Error; err != nil {
		return nil, dbError(err, "session")
	}
	return &s, nil
}

// sessionAccess loads a session and checks the caller is in its campaign.
func sessionAccess(db *gorm.DB, sessionID int64, id Identity, dm bool) (*GameSession, access, error) {
	s, err := loadSession(db, sessionID)
	if err != nil {
		return nil, access{}, err
	}
	check := requireMember
	if dm {
		check = requireDM
	}
	a, err := check(db, s.CampaignID, id)
	if err != nil {
		return nil, a, err
	}
	return s, a, nil
}

func loadScene(db *gorm.DB, sceneID int64) (*Scene, error) {
	var s Scene
	if err := db.First(&s, sceneID).Error; err != nil {
		return nil, dbError(err, "scene")
	}
	return &s, nil
}

func sceneAccess(db *gorm.DB, sceneID int64, id Identity, dm bool) (*Scene, access, error) {
	s, err := loadScene(db, sceneID)
	if err != nil {
		return nil, access{}, err
	}
	check := requireMember
	if dm {
		check = requireDM
	}
	a, err := check(db, s.CampaignID, id)
	if err != nil {
		return nil, a, err
	}
	return s, a, nil
}
