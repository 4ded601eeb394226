package taverna

// Channel is the chat channel a message is posted to.
type Channel string

const (
	ChannelGeneral        Channel = "GENERAL"
	ChannelInCharacter    Channel = "IN_CHARACTER"
	ChannelOutOfCharacter Channel = "OUT_OF_CHARACTER"
	ChannelCombat         Channel = "COMBAT"
	ChannelWhisper        Channel = "WHISPER"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelGeneral, ChannelInCharacter, ChannelOutOfCharacter, ChannelCombat, ChannelWhisper:
		return true
	}
	return false
}

// MessageType says how a chat message should be displayed.
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageDice   MessageType = "DICE"
	MessageCombat MessageType = "COMBAT"
	MessageSystem MessageType = "SYSTEM"
)

// Reaction is one emoji and the users who picked it.
type Reaction struct {
	Emoji   string  `json:"emoji"`
	UserIDs []int64 `json:"userIds"`
}

// ToggleReaction adds userID to emoji, or removes it if already there.
// Reactions left with nobody are dropped. The input is not modified.
func ToggleReaction(reactions []Reaction, emoji string, userID int64) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, r)
			continue
		}
		found = true

		ids := make([]int64, 0, len(r.UserIDs)+1)
		had := false
		for _, id := range r.UserIDs {
			if id == userID {
				had = true
				continue
			}
			ids = append(ids, id)
		}
		if !had {
			ids = append(ids, userID)
		}
		if len(ids) > 0 {
			out = append(out, Reaction{Emoji: emoji, UserIDs: ids})
		}
	}
	if !found {
		out = append(out, Reaction{Emoji: emoji, UserIDs: []int64{userID}})
	}
	return out
}

// CanSeeWhisper reports whether viewer may read a whisper from sender to
// recipient. The DM reads every whisper in their campaign.
func CanSeeWhisper(sender, recipient *int64, viewer int64, viewerIsDM bool) bool {
	if viewerIsDM {
		return true
	}
	if sender != nil && *sender == viewer {
		return true
	}
	return recipient != nil && *recipient == viewer
}

// MessagePayload is the structured attachment of a DICE or COMBAT message.
type MessagePayload struct {
	Roll      *RollResult `json:"roll,omitempty"`
	Label     string      `json:"label,omitempty"`
	SessionID int64       `json:"sessionId,omitempty"`
	EntryID   int64       `json:"entryId,omitempty"`
	Event     LogAction   `json:"event,omitempty"`
}
