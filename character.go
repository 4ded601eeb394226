package taverna

// AbilityScores are the six classic attributes.
type AbilityScores struct {
	Strength     int `json:"strength" validate:"gte=1,lte=30"`
	Dexterity    int `json:"dexterity" validate:"gte=1,lte=30"`
	Constitution int `json:"constitution" validate:"gte=1,lte=30"`
	Intelligence int `json:"intelligence" validate:"gte=1,lte=30"`
	Wisdom       int `json:"wisdom" validate:"gte=1,lte=30"`
	Charisma     int `json:"charisma" validate:"gte=1,lte=30"`
}

// DefaultAbilityScores is a sheet of straight tens.
func DefaultAbilityScores() AbilityScores {
	return AbilityScores{10, 10, 10, 10, 10, 10}
}

// Modifier is floor((score - 10) / 2).
func Modifier(score int) int {
	if score < 10 {
		return (score - 11) / 2
	}
	return (score - 10) / 2
}

// InventoryItem is a line in a character's pack.
type InventoryItem struct {
	Name     string `json:"name" validate:"required,max=100"`
	Quantity int    `json:"quantity" validate:"gte=0,lte=9999"`
	Weight   int    `json:"weight,omitempty" validate:"gte=0"`
	Notes    string `json:"notes,omitempty" validate:"max=500"`
}

// SpellSlot tracks slots of one spell level.
type SpellSlot struct {
	Level int `json:"level" validate:"gte=1,lte=9"`
	Total int `json:"total" validate:"gte=0,lte=20"`
	Used  int `json:"used" validate:"gte=0,ltefield=Total"`
}

// CharacterSheet is everything a player tracks about their character.
type CharacterSheet struct {
	Class      string          `json:"class" validate:"max=50"`
	Race       string          `json:"race" validate:"max=50"`
	Level      int             `json:"level" validate:"gte=1,lte=20"`
	Abilities  AbilityScores   `json:"abilities"`
	HP         HP              `json:"hp"`
	ArmorClass int             `json:"armorClass" validate:"gte=0,lte=50"`
	Speed      int             `json:"speed" validate:"gte=0,lte=200"`
	Inventory  []InventoryItem `json:"inventory" validate:"max=200,dive"`
	SpellSlots []SpellSlot     `json:"spellSlots" validate:"max=9,dive"`
	Notes      string          `json:"notes" validate:"max=10000"`
}

// NewCharacterSheet returns a level one sheet with empty lists.
func NewCharacterSheet() CharacterSheet {
	return CharacterSheet{
		Level:      1,
		Abilities:  DefaultAbilityScores(),
		HP:         HP{Current: 10, Max: 10},
		ArmorClass: 10,
		Speed:      30,
		Inventory:  []InventoryItem{},
		SpellSlots: []SpellSlot{},
	}
}

// Normalize replaces nil lists with empty ones so they encode as [].
func (s *CharacterSheet) Normalize() {
	if s.Inventory == nil {
		s.Inventory = []InventoryItem{}
	}
	if s.SpellSlots == nil {
		s.SpellSlots = []SpellSlot{}
	}
}
