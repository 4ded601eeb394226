package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Event types pushed to campaign subscribers.
const (
	EventMessageCreated    = "message.created"
	EventMessageUpdated    = "message.updated"
	EventMessageDeleted    = "message.deleted"
	EventSessionUpdated    = "session.updated"
	EventInitiativeUpdated = "initiative.updated"
	EventLogAppended       = "log.appended"
	EventSceneUpdated      = "scene.updated"
	EventCampaignUpdated   = "campaign.updated"

	// EventAccessRevoked closes matching subscriptions instead of being
	// broadcast. CampaignID 0 means every campaign, UserID 0 every user.
	EventAccessRevoked = "access.revoked"
)

// Event is a change notice for one campaign. Clients re-fetch on receipt.
type Event struct {
	Type       string          `json:"type"`
	CampaignID int64           `json:"campaignId"`
	UserID     int64           `json:"userId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	At         time.Time       `json:"at"`
}

// Broker fans events out to every subscriber of a campaign.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

var hub = newWSHub()

// events is replaced by a redis broker when REDIS_URL is set.
var events Broker = localBroker{hub: hub}

var wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "taverna",
	Name:      "websocket_connections",
	Help:      "Open campaign websocket connections.",
})

// publish sends an event after a successful commit. Failures are logged,
// never returned: delivery is best effort.
func publish(ctx context.Context, campaignID int64, typ string, data any) {
	ev := Event{Type: typ, CampaignID: campaignID, At: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Errorw("could not encode event", "type", typ, zap.Error(err))
			return
		}
		ev.Data = raw
	}
	if err := events.Publish(ctx, ev); err != nil {
		log.Warnw("could not publish event", "type", typ, "campaign_id", campaignID, zap.Error(err))
	}
}

// revoke closes the sockets of a user who lost access to a campaign. Pass
// userID 0 to drop a whole campaign, or campaignID 0 to drop a user
// everywhere.
func revoke(ctx context.Context, campaignID, userID int64) {
	ev := Event{Type: EventAccessRevoked, CampaignID: campaignID, UserID: userID, At: time.Now().UTC()}
	if err := events.Publish(ctx, ev); err != nil {
		log.Warnw("could not revoke subscriptions", "campaign_id", campaignID, "user_id", userID, zap.Error(err))
	}
}

type localBroker struct {
	hub *wsHub
}

func (b localBroker) Publish(_ context.Context, ev Event) error {
	b.hub.Deliver(ev)
	return nil
}

func (b localBroker) Close() error {
	return nil
}

type wsClient struct {
	id     string
	userID int64
	conn   *websocket.Conn
	// gorilla connections allow one concurrent writer
	mu sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type wsHub struct {
	mu     sync.Mutex
	groups map[int64]map[string]*wsClient
}

func newWSHub() *wsHub {
	return &wsHub{groups: make(map[int64]map[string]*wsClient)}
}

func (h *wsHub) Add(campaignID int64, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[campaignID]
	if group == nil {
		group = make(map[string]*wsClient)
		h.groups[campaignID] = group
	}
	group[c.id] = c
	wsConnections.Inc()
}

func (h *wsHub) Remove(campaignID int64, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[campaignID]
	if group == nil {
		return
	}
	if _, ok := group[c.id]; !ok {
		return
	}
	delete(group, c.id)
	_ = c.conn.Close()
	wsConnections.Dec()
	if len(group) == 0 {
		delete(h.groups, campaignID)
	}
}

// Count returns the number of subscribers of a campaign.
func (h *wsHub) Count(campaignID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[campaignID])
}

// Deliver routes an event from a broker: revocations drop subscribers,
// everything else is broadcast.
func (h *wsHub) Deliver(ev Event) {
	if ev.Type == EventAccessRevoked {
		h.Drop(ev.CampaignID, ev.UserID)
		return
	}
	h.Broadcast(ev)
}

// Drop sends a revocation notice to the matching clients and closes them.
// A zero campaignID or userID matches any.
func (h *wsHub) Drop(campaignID, userID int64) {
	type target struct {
		campaignID int64
		c          *wsClient
	}

	h.mu.Lock()
	var targets []target
	for cid, group := range h.groups {
		if campaignID != 0 && cid != campaignID {
			continue
		}
		for _, c := range group {
			if userID == 0 || c.userID == userID {
				targets = append(targets, target{cid, c})
			}
		}
	}
	h.mu.Unlock()

	for _, t := range targets {
		data, err := json.Marshal(Event{Type: EventAccessRevoked, CampaignID: t.campaignID, UserID: t.c.userID, At: time.Now().UTC()})
		if err == nil {
			_ = t.c.send(data)
		}
		h.Remove(t.campaignID, t.c)
	}
}

func (h *wsHub) Broadcast(ev Event) {
	h.mu.Lock()
	group := h.groups[ev.CampaignID]
	clients := make([]*wsClient, 0, len(group))
	for _, c := range group {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, c := range clients {
		if err := c.send(data); err != nil {
			h.Remove(ev.CampaignID, c)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return originAllowed(r.Header.Get("Origin"))
	},
}

func originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range conf.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// @Summary Subscribe to campaign events
// @Description Upgrades to a websocket that receives change notices for the campaign
// @Tags campaigns
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 101 {string} string "Switching Protocols"
// @Failure 403 {object} Response
// @Router /campaigns/{id}/ws [get]
func campaignSocketHandler(w http.ResponseWriter, r *http.Request) {
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
	id := identityFrom(r)
	if _, err := requireMember(db, campaignID, id); err != nil {
		renderError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{id: uuid.NewString(), userID: id.UserID, conn: conn}
	hub.Add(campaignID, c)
	log.Debugw("ws connected", "campaign_id", campaignID, "client", c.id, "user_id", id.UserID)

	go readSocket(campaignID, c)
}

// readSocket drains client frames until the connection drops. Clients
// never send anything meaningful.
func readSocket(campaignID int64, c *wsClient) {
	defer hub.Remove(campaignID, c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			log.Debugw("ws disconnected", "campaign_id", campaignID, "client", c.id, zap.Error(err))
			return
		}
	}
}
