package main

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// User represents an authenticated user (local or social)
type User struct {
	ID           int64                `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider     string               `gorm:"type:varchar(32);not null;uniqueIndex:idx_provider_id" json:"provider"`
	ProviderID   string               `gorm:"type:varchar(128);not null;uniqueIndex:idx_provider_id" json:"providerId"`
	Email        string               `gorm:"type:varchar(255);uniqueIndex" json:"email,omitempty"`
	Name         string               `gorm:"type:varchar(128)" json:"name,omitempty"`
	AvatarURL    string               `gorm:"type:varchar(512)" json:"avatarUrl,omitempty"`
	PasswordHash string               `gorm:"type:varchar(255)" json:"-"`
	Role         taverna.PlatformRole `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	Disabled     bool                 `gorm:"not null;default:false" json:"disabled"`
	Preferences  datatypes.JSON       `json:"preferences,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// Campaign is a group of players and their DM.
type Campaign struct {
	ID          int64                  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string                 `gorm:"type:varchar(100);not null" json:"name"`
	Description string                 `gorm:"type:text" json:"description"`
	Status      taverna.CampaignStatus `gorm:"type:varchar(16);not null;default:ACTIVE;index" json:"status"`
	DMID        int64                  `gorm:"column:dm_id;not null;index" json:"dmId"`
	MaxPlayers  int                    `gorm:"not null" json:"maxPlayers"`
	InviteCode  string                 `gorm:"type:varchar(64);uniqueIndex" json:"inviteCode,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// CampaignMember links a user to a campaign.
type CampaignMember struct {
	ID         int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID int64        `gorm:"not null;uniqueIndex:idx_member" json:"campaignId"`
	UserID     int64        `gorm:"not null;uniqueIndex:idx_member;index" json:"userId"`
	Role       taverna.Role `gorm:"type:varchar(16);not null" json:"role"`
	CreatedAt  time.Time    `json:"joinedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Character is a player's sheet in one campaign.
type Character struct {
	ID         int64                                      `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID int64                                      `gorm:"not null;index" json:"campaignId"`
	UserID     int64                                      `gorm:"not null;index" json:"userId"`
	Name       string                                     `gorm:"type:varchar(100);not null" json:"name"`
	Sheet      datatypes.JSONType[taverna.CharacterSheet] `gorm:"not null" json:"sheet"`
	CreatedAt  time.Time                                  `json:"createdAt"`
	UpdatedAt  time.Time                                  `json:"updatedAt"`
}

// GameSession is one night of play.
type GameSession struct {
	ID               int64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID       int64                      `gorm:"not null;uniqueIndex:idx_session_number" json:"campaignId"`
	SessionNumber    int                        `gorm:"not null;uniqueIndex:idx_session_number" json:"sessionNumber"`
	Title            string                     `gorm:"type:varchar(200)" json:"title"`
	Status           taverna.SessionStatus      `gorm:"type:varchar(16);not null;default:LOBBY" json:"status"`
	CurrentRound     int                        `gorm:"not null;default:0" json:"currentRound"`
	ConnectedPlayers datatypes.JSONSlice[int64] `gorm:"not null" json:"connectedPlayers"`
	StartedAt        *time.Time                 `json:"startedAt"`
	EndedAt          *time.Time                 `json:"endedAt"`
	CreatedAt        time.Time                  `json:"createdAt"`
	UpdatedAt        time.Time                  `json:"updatedAt"`

	Initiative []InitiativeEntry `gorm:"-" json:"initiative,omitempty"`
}

func (s *GameSession) BeforeSave(*gorm.DB) error {
	if s.ConnectedPlayers == nil {
		s.ConnectedPlayers = datatypes.JSONSlice[int64]{}
	}
	return nil
}

func (s *GameSession) lifecycle() taverna.Lifecycle {
	return taverna.Lifecycle{Status: s.Status, StartedAt: s.StartedAt, EndedAt: s.EndedAt}
}

// InitiativeEntry is one combatant in a session.
type InitiativeEntry struct {
	ID              int64                          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID       int64                          `gorm:"not null;index" json:"sessionId"`
	Name            string                         `gorm:"type:varchar(100);not null" json:"name"`
	Initiative      int                            `gorm:"not null" json:"initiative"`
	HP              datatypes.JSONType[taverna.HP] `gorm:"column:hp;not null" json:"hp"`
	ArmorClass      int                            `gorm:"not null;default:10" json:"armorClass"`
	Conditions      datatypes.JSONSlice[string]    `gorm:"not null" json:"conditions"`
	ConcentratingOn *string                        `gorm:"type:varchar(100)" json:"concentratingOn"`
	IsActive        bool                           `gorm:"not null;default:false" json:"isActive"`
	CharacterID     *int64                         `gorm:"index" json:"characterId,omitempty"`
	IsNPC           bool                           `gorm:"column:is_npc;not null;default:false" json:"isNpc"`
	CreatedAt       time.Time                      `json:"createdAt"`
	UpdatedAt       time.Time                      `json:"updatedAt"`
}

func (e *InitiativeEntry) BeforeSave(*gorm.DB) error {
	if e.Conditions == nil {
		e.Conditions = datatypes.JSONSlice[string]{}
	}
	return nil
}

func (e *InitiativeEntry) combatant() taverna.Combatant {
	return taverna.Combatant{ID: e.ID, Name: e.Name, Initiative: e.Initiative, IsActive: e.IsActive}
}

// CombatLogEntry is an append-only record of something that happened in a
// session.
type CombatLogEntry struct {
	ID        int64                                  `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID int64                                  `gorm:"not null;index" json:"sessionId"`
	Round     int                                    `gorm:"not null" json:"round"`
	Turn      string                                 `gorm:"type:varchar(100)" json:"turn"`
	Action    taverna.LogAction                      `gorm:"type:varchar(32);not null;index" json:"action"`
	Result    string                                 `gorm:"type:text" json:"result"`
	Payload   datatypes.JSONType[taverna.LogPayload] `gorm:"not null" json:"payload"`
	CreatedAt time.Time                              `json:"createdAt"`
}

func (l *CombatLogEntry) line() taverna.LogLine {
	return taverna.LogLine{
		Round:   l.Round,
		Actor:   l.Turn,
		Action:  l.Action,
		Result:  l.Result,
		Payload: l.Payload.Data(),
	}
}

// ChatMessage is a post in a campaign's chat.
type ChatMessage struct {
	ID          int64                                      `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID  int64                                      `gorm:"not null;index" json:"campaignId"`
	SessionID   *int64                                     `gorm:"index" json:"sessionId,omitempty"`
	Channel     taverna.Channel                            `gorm:"type:varchar(32);not null" json:"channel"`
	Type        taverna.MessageType                        `gorm:"type:varchar(16);not null" json:"type"`
	SenderID    *int64                                     `gorm:"index" json:"senderId"`
	SenderName  string                                     `gorm:"type:varchar(128)" json:"senderName"`
	Content     string                                     `gorm:"type:text" json:"content"`
	Payload     datatypes.JSONType[taverna.MessagePayload] `gorm:"not null" json:"payload"`
	Reactions   datatypes.JSONSlice[taverna.Reaction]      `gorm:"not null" json:"reactions"`
	Pinned      bool                                       `gorm:"not null;default:false" json:"pinned"`
	ReplyToID   *int64                                     `json:"replyToId,omitempty"`
	RecipientID *int64                                     `json:"recipientId,omitempty"`
	EditedAt    *time.Time                                 `json:"editedAt,omitempty"`
	CreatedAt   time.Time                                  `json:"createdAt"`
	UpdatedAt   time.Time                                  `json:"updatedAt"`
}

func (m *ChatMessage) BeforeSave(*gorm.DB) error {
	if m.Reactions == nil {
		m.Reactions = datatypes.JSONSlice[taverna.Reaction]{}
	}
	return nil
}

// Scene is a battle map.
type Scene struct {
	ID            int64                               `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID    int64                               `gorm:"not null;index" json:"campaignId"`
	Name          string                              `gorm:"type:varchar(100);not null" json:"name"`
	Width         int                                 `gorm:"not null" json:"width"`
	Height        int                                 `gorm:"not null" json:"height"`
	GridSize      int                                 `gorm:"not null;default:50" json:"gridSize"`
	BackgroundURL string                              `gorm:"type:varchar(512)" json:"backgroundUrl,omitempty"`
	Fog           datatypes.JSONType[taverna.FogGrid] `gorm:"not null" json:"fog"`
	CreatedAt     time.Time                           `json:"createdAt"`
	UpdatedAt     time.Time                           `json:"updatedAt"`

	Tokens   []Token   `gorm:"-" json:"tokens,omitempty"`
	Drawings []Drawing `gorm:"-" json:"drawings,omitempty"`
}

// Token is a marker placed on a scene.
type Token struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SceneID     int64     `gorm:"not null;index" json:"sceneId"`
	Name        string    `gorm:"type:varchar(100)" json:"name"`
	X           int       `gorm:"not null" json:"x"`
	Y           int       `gorm:"not null" json:"y"`
	Size        int       `gorm:"not null;default:1" json:"size"`
	Color       string    `gorm:"type:varchar(32)" json:"color,omitempty"`
	Hidden      bool      `gorm:"not null;default:false" json:"hidden"`
	CharacterID *int64    `json:"characterId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Drawing is a freehand annotation on a scene.
type Drawing struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SceneID   int64          `gorm:"not null;index" json:"sceneId"`
	AuthorID  int64          `gorm:"not null" json:"authorId"`
	DMOnly    bool           `gorm:"column:dm_only;not null;default:false" json:"dmOnly"`
	Shape     string         `gorm:"type:varchar(32)" json:"shape"`
	Color     string         `gorm:"type:varchar(32)" json:"color,omitempty"`
	Data      datatypes.JSON `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Quest is an entry on a campaign's quest board.
type Quest struct {
	ID          int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID  int64               `gorm:"not null;index" json:"campaignId"`
	Title       string              `gorm:"type:varchar(200);not null" json:"title"`
	Description string              `gorm:"type:text" json:"description"`
	Status      taverna.QuestStatus `gorm:"type:varchar(16);not null;default:OPEN" json:"status"`
	Reward      string              `gorm:"type:varchar(500)" json:"reward,omitempty"`
	Hidden      bool                `gorm:"not null;default:false" json:"hidden"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// LoreEntry is a page in a campaign's wiki.
type LoreEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID int64     `gorm:"not null;index" json:"campaignId"`
	AuthorID   int64     `gorm:"not null" json:"authorId"`
	Title      string    `gorm:"type:varchar(200);not null" json:"title"`
	Category   string    `gorm:"type:varchar(50);index" json:"category"`
	Body       string    `gorm:"type:text" json:"body"`
	DMOnly     bool      `gorm:"column:dm_only;not null;default:false" json:"dmOnly"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AuditLog records a mutating admin action.
type AuditLog struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID    int64             `gorm:"not null;index" json:"actorId"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"targetType"`
	TargetID   int64             `gorm:"not null" json:"targetId"`
	Details    datatypes.JSONMap `json:"details"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// AutoMigrate runs the database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Campaign{},
		&CampaignMember{},
		&Character{},
		&GameSession{},
		&InitiativeEntry{},
		&CombatLogEntry{},
		&ChatMessage{},
		&Scene{},
		&Token{},
		&Drawing{},
		&Quest{},
		&LoreEntry{},
		&AuditLog{},
	)
}
