package taverna

// QuestStatus tracks a quest on the board.
type QuestStatus string

const (
	QuestOpen      QuestStatus = "OPEN"
	QuestActive    QuestStatus = "ACTIVE"
	QuestCompleted QuestStatus = "COMPLETED"
	QuestFailed    QuestStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s QuestStatus) Valid() bool {
	switch s {
	case QuestOpen, QuestActive, QuestCompleted, QuestFailed:
		return true
	}
	return false
}
