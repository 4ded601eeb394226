package taverna_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/icco/taverna"
	"github.com/icco/taverna/mocks"
)

func TestParseFormula(t *testing.T) {
	tests := []struct {
		in   string
		want taverna.Formula
		kind taverna.Kind
		err  bool
	}{
		{in: "2d6+3", want: taverna.Formula{Count: 2, Sides: 6, Modifier: 3}},
		{in: "1d20", want: taverna.Formula{Count: 1, Sides: 20}},
		{in: "4d8-2", want: taverna.Formula{Count: 4, Sides: 8, Modifier: -2}},
		{in: " 3D10 + 1 ", want: taverna.Formula{Count: 3, Sides: 10, Modifier: 1}},
		{in: "100d1000", want: taverna.Formula{Count: 100, Sides: 1000}},
		{in: "d20", err: true, kind: taverna.KindValidation},
		{in: "2d", err: true, kind: taverna.KindValidation},
		{in: "2d6+", err: true, kind: taverna.KindValidation},
		{in: "2x6", err: true, kind: taverna.KindValidation},
		{in: "0d6", err: true, kind: taverna.KindValidation},
		{in: "101d6", err: true, kind: taverna.KindValidation},
		{in: "1d0", err: true, kind: taverna.KindValidation},
		{in: "1d1001", err: true, kind: taverna.KindValidation},
		{in: "", err: true, kind: taverna.KindValidation},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := taverna.ParseFormula(tc.in)
			if tc.err {
				require.Error(t, err)
				assert.Equal(t, tc.kind, taverna.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormulaString(t *testing.T) {
	assert.Equal(t, "2d6+3", taverna.Formula{Count: 2, Sides: 6, Modifier: 3}.String())
	assert.Equal(t, "1d8-1", taverna.Formula{Count: 1, Sides: 8, Modifier: -1}.String())
	assert.Equal(t, "1d20", taverna.Formula{Count: 1, Sides: 20}.String())
}

func TestRollWithMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	roller := mocks.NewMockRoller(ctrl)

	gomock.InOrder(
		roller.EXPECT().Intn(6).Return(3),
		roller.EXPECT().Intn(6).Return(5),
	)

	res, err := taverna.RollString(roller, "2d6+3")
	require.NoError(t, err)

	assert.Equal(t, []int{4, 6}, res.Rolls)
	assert.Equal(t, 3, res.Modifier)
	assert.Equal(t, 13, res.Total)
	assert.Equal(t, "2d6+3", res.Formula)
}

func TestRollBounds(t *testing.T) {
	roller, err := taverna.NewRoller()
	require.NoError(t, err)

	f := taverna.Formula{Count: 2, Sides: 6, Modifier: 3}
	for i := 0; i < 500; i++ {
		res := taverna.Roll(roller, f)
		require.Len(t, res.Rolls, 2)
		sum := 0
		for _, r := range res.Rolls {
			assert.GreaterOrEqual(t, r, 1)
			assert.LessOrEqual(t, r, 6)
			sum += r
		}
		assert.Equal(t, sum+3, res.Total)
		assert.Equal(t, 3, res.Modifier)
	}
}

func TestRollInvalidFormula(t *testing.T) {
	ctrl := gomock.NewController(t)
	roller := mocks.NewMockRoller(ctrl)

	_, err := taverna.RollString(roller, "lots of dice")
	assert.True(t, errors.Is(err, taverna.ErrInvalidFormula))
}

func TestRollTable(t *testing.T) {
	table := []taverna.TableEntry{
		{Min: 1, Max: 3, Result: "Goblins"},
		{Min: 4, Max: 5, Result: "Wolves"},
		{Min: 8, Max: 10, Result: "Dragon"},
	}

	t.Run("match", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		roller := mocks.NewMockRoller(ctrl)
		roller.EXPECT().Intn(10).Return(4)

		res, err := taverna.RollTable(roller, table)
		require.NoError(t, err)
		assert.Equal(t, 10, res.Die)
		assert.Equal(t, 5, res.Roll)
		assert.True(t, res.Matched)
		require.NotNil(t, res.Entry)
		assert.Equal(t, "Wolves", res.Entry.Result)
	})

	t.Run("gap", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		roller := mocks.NewMockRoller(ctrl)
		roller.EXPECT().Intn(10).Return(5)

		res, err := taverna.RollTable(roller, table)
		require.NoError(t, err)
		assert.Equal(t, 6, res.Roll)
		assert.False(t, res.Matched)
		assert.Nil(t, res.Entry)
	})

	t.Run("empty", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		roller := mocks.NewMockRoller(ctrl)

		_, err := taverna.RollTable(roller, nil)
		require.Error(t, err)
		assert.Equal(t, taverna.KindValidation, taverna.KindOf(err))
	})
}
