package taverna

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_roller.go github.com/icco/taverna Roller

// Roller is a source of uniform integers in [0, n).
type Roller interface {
	Intn(n int) int
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// NewRoller returns a Roller safe for concurrent use, seeded from
// crypto/rand. Rolls are not reproducible.
func NewRoller() (Roller, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	seed := int64(binary.LittleEndian.Uint64(b[:]))
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}, nil
}

const (
	MaxDiceCount = 100
	MaxDieSides  = 1000
)

// (count)d(sides)(modifier)
var formulaRegex = regexp.MustCompile(`^(\d{1,3})d(\d{1,4})([+-]\d{1,5})?$`)

// Formula is a parsed dice expression such as 2d6+3.
type Formula struct {
	Count    int
	Sides    int
	Modifier int
}

func (f Formula) String() string {
	switch {
	case f.Modifier > 0:
		return fmt.Sprintf("%dd%d+%d", f.Count, f.Sides, f.Modifier)
	case f.Modifier < 0:
		return fmt.Sprintf("%dd%d%d", f.Count, f.Sides, f.Modifier)
	}
	return fmt.Sprintf("%dd%d", f.Count, f.Sides)
}

// ParseFormula validates s against <count>d<size>[+/-modifier] and parses it.
// Whitespace and case are ignored.
func ParseFormula(s string) (Formula, error) {
	clean := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	parts := formulaRegex.FindStringSubmatch(clean)
	if parts == nil {
		return Formula{}, ErrInvalidFormula
	}

	count, err := strconv.Atoi(parts[1])
	if err != nil {
		return Formula{}, ErrInvalidFormula
	}
	sides, err := strconv.Atoi(parts[2])
	if err != nil {
		return Formula{}, ErrInvalidFormula
	}
	mod := 0
	if parts[3] != "" {
		mod, err = strconv.Atoi(parts[3])
		if err != nil {
			return Formula{}, ErrInvalidFormula
		}
	}

	if count < 1 || count > MaxDiceCount {
		return Formula{}, Invalid("dice count must be between 1 and %d", MaxDiceCount)
	}
	if sides < 1 || sides > MaxDieSides {
		return Formula{}, Invalid("die size must be between 1 and %d", MaxDieSides)
	}

	return Formula{Count: count, Sides: sides, Modifier: mod}, nil
}

// RollResult is a resolved formula.
type RollResult struct {
	Formula  string `json:"formula"`
	Rolls    []int  `json:"rolls"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
}

// Roll draws Count dice of Sides faces and adds the modifier.
func Roll(r Roller, f Formula) RollResult {
	res := RollResult{
		Formula:  f.String(),
		Rolls:    make([]int, f.Count),
		Modifier: f.Modifier,
	}
	sum := 0
	for i := 0; i < f.Count; i++ {
		v := r.Intn(f.Sides) + 1
		res.Rolls[i] = v
		sum += v
	}
	res.Total = sum + f.Modifier
	return res
}

// RollString parses and rolls s.
func RollString(r Roller, s string) (RollResult, error) {
	f, err := ParseFormula(s)
	if err != nil {
		return RollResult{}, err
	}
	return Roll(r, f), nil
}

// TableEntry is one authored range of a random table.
type TableEntry struct {
	Min    int    `json:"min" validate:"gte=1"`
	Max    int    `json:"max" validate:"gtefield=Min"`
	Result string `json:"result" validate:"required,max=500"`
}

// TableResult is the outcome of rolling on a table. Entry is nil when the
// roll fell into a gap between authored ranges.
type TableResult struct {
	Die     int         `json:"die"`
	Roll    int         `json:"roll"`
	Matched bool        `json:"matched"`
	Entry   *TableEntry `json:"entry,omitempty"`
}

// RollTable rolls 1d<largest max> and returns the first entry whose range
// contains the roll. Gaps are not an error.
func RollTable(r Roller, table []TableEntry) (TableResult, error) {
	if len(table) == 0 {
		return TableResult{}, Invalid("table has no entries")
	}

	die := 0
	for _, e := range table {
		if e.Max > die {
			die = e.Max
		}
	}
	if die < 1 {
		return TableResult{}, Invalid("table ranges must reach at least 1")
	}

	res := TableResult{Die: die, Roll: r.Intn(die) + 1}
	for i := range table {
		if res.Roll >= table[i].Min && res.Roll <= table[i].Max {
			e := table[i]
			res.Entry = &e
			res.Matched = true
			break
		}
	}
	return res, nil
}
