package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moul.io/zapgorm2"

	"github.com/icco/taverna"
)

var (
	dbMu   sync.Mutex
	dbConn *gorm.DB
)

func getDB() (*gorm.DB, error) {
	dbMu.Lock()
	defer dbMu.Unlock()

	if dbConn != nil {
		return dbConn, nil
	}

	db, err := openDB(conf.DatabaseURL)
	if err != nil {
		return nil, err
	}
	dbConn = db
	return db, nil
}

// setDB replaces the shared connection.
func setDB(db *gorm.DB) {
	dbMu.Lock()
	defer dbMu.Unlock()
	dbConn = db
}

// openDB connects to postgres, or to sqlite when dsn starts with "sqlite:",
// and migrates the schema.
func openDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	gl := zapgorm2.New(log.Desugar())
	gl.SlowThreshold = 200 * time.Millisecond
	gl.IgnoreRecordNotFoundError = true
	gl.SetAsDefault()

	config := &gorm.Config{
		Logger:         gl.LogMode(logger.Warn),
		TranslateError: true,
	}

	path, isSQLite := strings.CutPrefix(dsn, "sqlite:")
	var dialector gorm.Dialector
	if isSQLite {
		dialector = sqlite.Open(path)
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, err
	}

	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows one writer
		sqlDB.SetMaxOpenConns(1)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to run auto-migration: %w", err)
	}

	return db, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique")
}

// getDBErrorMessage returns a user-friendly error message based on the database error
func getDBErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if isDuplicate(err) {
		return "already exists"
	}
	if errors.Is(err, gorm.ErrInvalidData) {
		return "invalid data"
	}
	if errors.Is(err, gorm.ErrInvalidDB) || errors.Is(err, gorm.ErrInvalidTransaction) {
		return "server configuration error, please try again later"
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return "service temporarily unavailable, please try again"
	}

	return ""
}

// dbError classifies a gorm error. what names the entity for the message.
func dbError(err error, what string) error {
	if err == nil {
		return nil
	}
	var te *taverna.Error
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return taverna.NotFound("%s not found", what)
	}
	if isDuplicate(err) {
		return taverna.Wrap(taverna.KindConflict, what+" already exists", err)
	}
	if msg := getDBErrorMessage(err); msg != "" {
		return taverna.Wrap(taverna.KindInternal, msg, err)
	}
	return err
}

func deleteSessionChildren(tx *gorm.DB, sessionIDs []int64) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	if err := tx.Where("session_id IN ?", sessionIDs).Delete(&InitiativeEntry{}).Error; err != nil {
		return err
	}
	return tx.Where("session_id IN ?", sessionIDs).Delete(&CombatLogEntry{}).Error
}

func deleteSceneChildren(tx *gorm.DB, sceneIDs []int64) error {
	if len(sceneIDs) == 0 {
		return nil
	}
	if err := tx.Where("scene_id IN ?", sceneIDs).Delete(&Token{}).Error; err != nil {
		return err
	}
	return tx.Where("scene_id IN ?", sceneIDs).Delete(&Drawing{}).Error
}

// deleteSession removes a session with its initiative and log. Chat
// messages keep their text but lose the session link.
func deleteSession(tx *gorm.DB, sessionID int64) error {
	if err := deleteSessionChildren(tx, []int64{sessionID}); err != nil {
		return err
	}
	if err := tx.Model(&ChatMessage{}).Where("session_id = ?", sessionID).Update("session_id", nil).Error; err != nil {
		return err
	}
	return tx.Delete(&GameSession{}, sessionID).Error
}

func deleteScene(tx *gorm.DB, sceneID int64) error {
	if err := deleteSceneChildren(tx, []int64{sceneID}); err != nil {
		return err
	}
	return tx.Delete(&Scene{}, sceneID).Error
}

// deleteCampaign removes a campaign and everything it owns. Must run inside
// a transaction.
func deleteCampaign(tx *gorm.DB, campaignID int64) error {
	var sessionIDs []int64
	if err := tx.Model(&GameSession{}).Where("campaign_id = ?", campaignID).Pluck("id", &sessionIDs).Error; err != nil {
		return err
	}
	if err := deleteSessionChildren(tx, sessionIDs); err != nil {
		return err
	}

	var sceneIDs []int64
	if err := tx.Model(&Scene{}).Where("campaign_id = ?", campaignID).Pluck("id", &sceneIDs).Error; err != nil {
		return err
	}
	if err := deleteSceneChildren(tx, sceneIDs); err != nil {
		return err
	}

	for _, model := range []any{
		&GameSession{}, &Scene{}, &ChatMessage{}, &Character{},
		&Quest{}, &LoreEntry{}, &CampaignMember{},
	} {
		if err := tx.Where("campaign_id = ?", campaignID).Delete(model).Error; err != nil {
			return err
		}
	}

	return tx.Delete(&Campaign{}, campaignID).Error
}

// removeMember drops a player and the characters they own in the campaign.
func removeMember(tx *gorm.DB, campaignID, userID int64) error {
	if err := tx.Where("campaign_id = ? AND user_id = ?", campaignID, userID).Delete(&Character{}).Error; err != nil {
		return err
	}
	res := tx.Where("campaign_id = ? AND user_id = ?", campaignID, userID).Delete(&CampaignMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return taverna.NotFound("member not found")
	}
	return nil
}
