package utils

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type PriceUtilsTestSuite struct {
	suite.Suite
}

func TestPriceUtilsSuite(t *testing.T) {
	suite.Run(t, new(PriceUtilsTestSuite))
}

func (suite *PriceUtilsTestSuite) TestSnapToTick() {
	tests := []struct {
		name      string
		price     float64
		tickSize  float64
		precision int
		expected  float64
	}{
		{name: "already aligned", price: 45000.0, tickSize: 0.1, precision: 1, expected: 45000.0},
		{name: "rounds down to tick", price: 45000.04, tickSize: 0.1, precision: 1, expected: 45000.0},
		{name: "rounds up to tick", price: 45000.06, tickSize: 0.1, precision: 1, expected: 45000.1},
		{name: "coarse tick", price: 103.3, tickSize: 0.5, precision: 1, expected: 103.5},
		{name: "integer tick", price: 104.2, tickSize: 1.0, precision: 0, expected: 104.0},
		{name: "zero tick falls back to precision", price: 99.987, tickSize: 0, precision: 2, expected: 99.99},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.InDelta(tt.expected, SnapToTick(tt.price, tt.tickSize, tt.precision), 1e-9)
		})
	}
}

func (suite *PriceUtilsTestSuite) TestRoundToDecimalPrecision() {
	suite.InDelta(1.23, RoundToDecimalPrecision(1.234, 2), 1e-9)
	suite.InDelta(1.24, RoundToDecimalPrecision(1.235, 2), 1e-9)
	suite.InDelta(1.0, RoundToDecimalPrecision(1.0, 4), 1e-9)
}

func (suite *PriceUtilsTestSuite) TestFloorToDecimalPrecision() {
	// Floors, never rounds up
	suite.InDelta(0.001, FloorToDecimalPrecision(0.0019, 3), 1e-9)
	suite.InDelta(1.234, FloorToDecimalPrecision(1.2349, 3), 1e-9)
}

func (suite *PriceUtilsTestSuite) TestFormatPrice() {
	suite.Equal("45000.1", FormatPrice(45000.1, 1))
	suite.Equal("45000.10", FormatPrice(45000.1, 2))
}

func (suite *PriceUtilsTestSuite) TestFormatQuantity() {
	suite.Equal("0.001", FormatQuantity(0.001, 3))
	suite.Equal("1.500000", FormatQuantity(1.5, 6))
}

func (suite *PriceUtilsTestSuite) TestPrecisionFromTick() {
	suite.Equal(1, PrecisionFromTick(0.1))
	suite.Equal(3, PrecisionFromTick(0.001))
	suite.Equal(0, PrecisionFromTick(1.0))
	suite.Equal(0, PrecisionFromTick(0))
}
