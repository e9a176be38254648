package grid

import (
	"testing"

	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type LevelsTestSuite struct {
	suite.Suite
	filters types.SymbolFilters
}

func (s *LevelsTestSuite) SetupTest() {
	s.filters = types.SymbolFilters{
		TickSize:          0.1,
		PricePrecision:    2,
		QuantityPrecision: 3,
	}
}

func (s *LevelsTestSuite) TestThreeLevelLadderAroundMarket() {
	levels, err := ComputeLevels(100, 110, 3, 105, s.filters)

	s.Require().NoError(err)
	s.Require().Len(levels, 3)

	s.Equal(types.GridLevel{Index: 1, Price: 100, Role: types.GridRoleBuy}, levels[0])
	s.Equal(types.GridLevel{Index: 2, Price: 105, Role: types.GridRoleAtMarket}, levels[1])
	s.Equal(types.GridLevel{Index: 3, Price: 110, Role: types.GridRoleSell}, levels[2])
}

func (s *LevelsTestSuite) TestLevelsStrictlyIncreasingAndSpanRange() {
	levels, err := ComputeLevels(100, 200, 11, 150, s.filters)

	s.Require().NoError(err)
	s.Require().Len(levels, 11)

	s.InDelta(100, levels[0].Price, 1e-9)
	s.InDelta(200, levels[len(levels)-1].Price, 1e-9)

	for i := 1; i < len(levels); i++ {
		s.Greater(levels[i].Price, levels[i-1].Price)
		s.Equal(i+1, levels[i].Index)
	}
}

func (s *LevelsTestSuite) TestClassificationSplitsAtMarketPrice() {
	levels, err := ComputeLevels(100, 200, 11, 153, s.filters)

	s.Require().NoError(err)

	for _, level := range levels {
		switch {
		case level.Price < 153:
			s.Equal(types.GridRoleBuy, level.Role, "level %d", level.Index)
		case level.Price > 153:
			s.Equal(types.GridRoleSell, level.Role, "level %d", level.Index)
		}
	}
}

func (s *LevelsTestSuite) TestPricesSnapToTick() {
	// Raw spacing of 10/3 does not land on the 0.1 tick.
	levels, err := ComputeLevels(100, 110, 4, 99, s.filters)

	s.Require().NoError(err)
	s.Require().Len(levels, 4)

	s.InDelta(100, levels[0].Price, 1e-9)
	s.InDelta(103.3, levels[1].Price, 1e-9)
	s.InDelta(106.7, levels[2].Price, 1e-9)
	s.InDelta(110, levels[3].Price, 1e-9)

	// Market below the range makes every level a sell.
	for _, level := range levels {
		s.Equal(types.GridRoleSell, level.Role)
	}
}

func (s *LevelsTestSuite) TestRejectsGridCountBelowTwo() {
	_, err := ComputeLevels(100, 110, 1, 105, s.filters)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidRange))
}

func (s *LevelsTestSuite) TestRejectsInvertedRange() {
	_, err := ComputeLevels(110, 100, 3, 105, s.filters)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidRange))
}

func (s *LevelsTestSuite) TestRejectsNonPositiveLowerPrice() {
	_, err := ComputeLevels(0, 110, 3, 105, s.filters)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidRange))
}

func TestLevelsTestSuite(t *testing.T) {
	suite.Run(t, new(LevelsTestSuite))
}
