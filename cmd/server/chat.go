package main

import (
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/icco/taverna"
)

const defaultChatPage = 50

type SendMessageRequest struct {
	Content     string          `json:"content" validate:"required,max=4000" example:"I search the altar."`
	Channel     taverna.Channel `json:"channel,omitempty" example:"IN_CHARACTER"`
	RecipientID *int64          `json:"recipientId,omitempty"`
	ReplyToID   *int64          `json:"replyToId,omitempty"`
	SessionID   *int64          `json:"sessionId,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32" example:"🎲"`
}

// ChatPage is one page of messages, newest first. NextBefore is the cursor
// for the following page and is absent on the last one.
type ChatPage struct {
	Messages   []ChatMessage `json:"messages"`
	NextBefore *int64        `json:"nextBefore,omitempty"`
}

// visibleMessages scopes q to the messages a non-DM viewer may read.
func visibleMessages(q *gorm.DB, a access) *gorm.DB {
	if a.IsDM() {
		return q
	}
	uid := a.UserID()
	return q.Where("(channel <> ? OR sender_id = ? OR recipient_id = ?)", taverna.ChannelWhisper, uid, uid)
}

func isWhisper(m *ChatMessage) bool {
	return m.Channel == taverna.ChannelWhisper
}

// messageAccess loads a message the caller can see. Whispers meant for
// someone else read as missing.
func messageAccess(db *gorm.DB, messageID int64, id Identity) (*ChatMessage, access, error) {
	var m ChatMessage
	if err := db.First(&m, messageID).Error; err != nil {
		return nil, access{}, dbError(err, "message")
	}
	a, err := requireMember(db, m.CampaignID, id)
	if err != nil {
		return nil, a, err
	}
	if isWhisper(&m) && !taverna.CanSeeWhisper(m.SenderID, m.RecipientID, id.UserID, a.IsDM()) {
		return nil, a, taverna.NotFound("message not found")
	}
	return &m, a, nil
}

// messageChanged publishes an update for anything but a whisper.
func messageChanged(r *http.Request, m *ChatMessage, typ string, data any) {
	if isWhisper(m) {
		return
	}
	publish(r.Context(), m.CampaignID, typ, data)
}

// @Summary List messages
// @Description Newest first. Pass nextBefore back as before for the next page.
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param before query int false "Only messages with a smaller id"
// @Param limit query int false "Page size"
// @Param channel query string false "Channel filter"
// @Success 200 {object} Response{data=ChatPage}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/messages [get]
func listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	pageMax := conf.ChatPageMax
	if pageMax < 1 {
		pageMax = defaultChatPage
	}
	limit := queryInt(r, "limit", defaultChatPage)
	if limit < 1 || limit > pageMax {
		limit = pageMax
	}
	before := queryInt(r, "before", 0)

	channel := taverna.Channel(strings.ToUpper(ugcPolicy.Sanitize(r.URL.Query().Get("channel"))))
	if channel != "" && !channel.Valid() {
		renderError(w, r, taverna.Invalid("unknown channel %q", channel))
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

	q := visibleMessages(db.Where("campaign_id = ?", campaignID), a)
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}

	var msgs []ChatMessage
	if err := q.Order("id DESC").Limit(limit + 1).Find(&msgs).Error; err != nil {
		renderError(w, r, err)
		return
	}

	page := ChatPage{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		next := page.Messages[limit-1].ID
		page.NextBefore = &next
	}
	if page.Messages == nil {
		page.Messages = []ChatMessage{}
	}
	renderData(w, http.StatusOK, page)
}

// @Summary List pinned messages
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} Response{data=[]ChatMessage}
// @Failure 403 {object} Response
// @Router /campaigns/{id}/messages/pinned [get]
func pinnedMessagesHandler(w http.ResponseWriter, r *http.Request) {
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

	var msgs []ChatMessage
	q := visibleMessages(db.Where("campaign_id = ? AND pinned = ?", campaignID, true), a)
	if err := q.Order("id").Find(&msgs).Error; err != nil {
		renderError(w, r, err)
		return
	}
	renderData(w, http.StatusOK, msgs)
}

// @Summary Send a message
// @Description Whispers need a recipientId and are only seen by the sender, the recipient and the DM.
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param message body SendMessageRequest true "Message"
// @Success 201 {object} Response{data=ChatMessage}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /campaigns/{id}/messages [post]
func sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Channel == "" {
		req.Channel = taverna.ChannelGeneral
	}
	if !req.Channel.Valid() {
		renderError(w, r, taverna.Invalid("unknown channel %q", req.Channel))
		return
	}
	if req.Channel == taverna.ChannelWhisper && req.RecipientID == nil {
		renderError(w, r, taverna.Invalid("a whisper needs a recipientId"))
		return
	}
	if req.Channel != taverna.ChannelWhisper && req.RecipientID != nil {
		renderError(w, r, taverna.Invalid("recipientId is only for whispers"))
		return
	}

	content := strings.TrimSpace(contentPolicy.Sanitize(req.Content))
	if content == "" {
		renderError(w, r, taverna.Invalid("content is required"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	m := ChatMessage{
		CampaignID:  campaignID,
		SessionID:   req.SessionID,
		Channel:     req.Channel,
		Type:        taverna.MessageText,
		SenderID:    &id.UserID,
		SenderName:  id.Name,
		Content:     content,
		ReplyToID:   req.ReplyToID,
		RecipientID: req.RecipientID,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireMember(tx, campaignID, id); err != nil {
			return err
		}
		if m.RecipientID != nil {
			var n int64
			if err := tx.Model(&CampaignMember{}).Where("campaign_id = ? AND user_id = ?", campaignID, *m.RecipientID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return taverna.Invalid("recipient is not in this campaign")
			}
		}
		if m.ReplyToID != nil {
			var n int64
			if err := tx.Model(&ChatMessage{}).Where("id = ? AND campaign_id = ?", *m.ReplyToID, campaignID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return taverna.Invalid("replyToId is not a message in this campaign")
			}
		}
		if m.SessionID != nil {
			s, err := loadSession(tx, *m.SessionID)
			if err != nil {
				return err
			}
			if s.CampaignID != campaignID {
				return taverna.Invalid("session is not in this campaign")
			}
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	stats().chatMessages.Add(r.Context(), 1)
	messageChanged(r, &m, EventMessageCreated, m)
	renderData(w, http.StatusCreated, m)
}

// @Summary Edit a message
// @Description Sender only
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Param message body EditMessageRequest true "New content"
// @Success 200 {object} Response{data=ChatMessage}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /messages/{id} [patch]
func editMessageHandler(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req EditMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	content := strings.TrimSpace(contentPolicy.Sanitize(req.Content))
	if content == "" {
		renderError(w, r, taverna.Invalid("content is required"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	var m *ChatMessage
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		m, _, err = messageAccess(tx, messageID, id)
		if err != nil {
			return err
		}
		if m.SenderID == nil || *m.SenderID != id.UserID {
			return taverna.Forbidden("only the sender can edit a message")
		}

		now := time.Now().UTC()
		m.Content = content
		m.EditedAt = &now
		return tx.Save(m).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	messageChanged(r, m, EventMessageUpdated, m)
	renderData(w, http.StatusOK, m)
}

// @Summary Delete a message
// @Description Sender or DM
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /messages/{id} [delete]
func deleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id")
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
	var m *ChatMessage
	err = db.Transaction(func(tx *gorm.DB) error {
		var a access
		var err error
		m, a, err = messageAccess(tx, messageID, id)
		if err != nil {
			return err
		}
		own := m.SenderID != nil && *m.SenderID == id.UserID
		if !own && !a.IsDM() {
			return taverna.Forbidden("only the sender or the dungeon master can delete a message")
		}
		return tx.Delete(&ChatMessage{}, m.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	messageChanged(r, m, EventMessageDeleted, map[string]int64{"id": m.ID})
	renderData(w, http.StatusOK, map[string]int64{"deleted": m.ID})
}

// @Summary Toggle a reaction
// @Description Adds the caller to the emoji, or removes them if already there
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Param reaction body ReactionRequest true "Emoji"
// @Success 200 {object} Response{data=ChatMessage}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /messages/{id}/reactions [post]
func reactHandler(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req ReactionRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	emoji := strings.TrimSpace(ugcPolicy.Sanitize(req.Emoji))
	if emoji == "" {
		renderError(w, r, taverna.Invalid("emoji is required"))
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	id := identityFrom(r)
	var m *ChatMessage
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		m, _, err = messageAccess(tx, messageID, id)
		if err != nil {
			return err
		}
		m.Reactions = taverna.ToggleReaction(m.Reactions, emoji, id.UserID)
		return tx.Save(m).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	messageChanged(r, m, EventMessageUpdated, m)
	renderData(w, http.StatusOK, m)
}

// @Summary Pin or unpin a message
// @Description DM only. Toggles the pinned flag.
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} Response{data=ChatMessage}
// @Failure 403 {object} Response
// @Router /messages/{id}/pin [post]
func pinMessageHandler(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var m *ChatMessage
	err = db.Transaction(func(tx *gorm.DB) error {
		var a access
		var err error
		m, a, err = messageAccess(tx, messageID, identityFrom(r))
		if err != nil {
			return err
		}
		if !a.IsDM() {
			return taverna.ErrNotDM
		}
		m.Pinned = !m.Pinned
		return tx.Model(m).Update("pinned", m.Pinned).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	messageChanged(r, m, EventMessageUpdated, m)
	renderData(w, http.StatusOK, m)
}
