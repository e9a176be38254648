package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
)

// OCORequest are the parameters for starting a one-cancels-other bracket.
type OCORequest struct {
	Symbol          string  `yaml:"symbol" json:"symbol" validate:"required"`
	Side            Side    `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Quantity        float64 `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	TakeProfitPrice float64 `yaml:"take_profit_price" json:"take_profit_price" validate:"required,gt=0"`
	StopPrice       float64 `yaml:"stop_price" json:"stop_price" validate:"required,gt=0"`
	// StopLimitPrice, when set, turns the stop leg into a stop-limit order.
	// Otherwise the stop leg uses the trigger price as its own limit price.
	StopLimitPrice optional.Option[float64] `yaml:"stop_limit_price" json:"stop_limit_price"`
}

// GridRequest are the parameters for starting a grid strategy.
type GridRequest struct {
	Symbol           string  `yaml:"symbol" json:"symbol" validate:"required"`
	QuantityPerLevel float64 `yaml:"quantity_per_level" json:"quantity_per_level" validate:"required,gt=0"`
	GridCount        int     `yaml:"grid_count" json:"grid_count" validate:"required,gte=2"`
	LowerPrice       float64 `yaml:"lower_price" json:"lower_price" validate:"required,gt=0"`
	UpperPrice       float64 `yaml:"upper_price" json:"upper_price" validate:"required,gt=0,gtfield=LowerPrice"`
}

// TWAPRequest are the parameters for starting a TWAP schedule.
type TWAPRequest struct {
	Symbol          string  `yaml:"symbol" json:"symbol" validate:"required"`
	Side            Side    `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	TotalQuantity   float64 `yaml:"total_quantity" json:"total_quantity" validate:"required,gt=0"`
	DurationMinutes int     `yaml:"duration_minutes" json:"duration_minutes" validate:"required,gt=0"`
	IntervalMinutes int     `yaml:"interval_minutes" json:"interval_minutes" validate:"required,gt=0"`
	// PriceLimit, when set, executes each chunk as a limit order at this price
	// instead of a market order.
	PriceLimit optional.Option[float64] `yaml:"price_limit" json:"price_limit"`
}

// Validate validates the OCORequest struct.
func (r *OCORequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "invalid OCO request", err)
	}

	return nil
}

// Validate validates the GridRequest struct.
func (r *GridRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "invalid grid request", err)
	}

	return nil
}

// Validate validates the TWAPRequest struct.
func (r *TWAPRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "invalid TWAP request", err)
	}

	if r.DurationMinutes/r.IntervalMinutes < 1 {
		return errors.Newf(errors.ErrCodeInvalidSchedule,
			"duration %dm with interval %dm yields zero chunks", r.DurationMinutes, r.IntervalMinutes)
	}

	return nil
}
