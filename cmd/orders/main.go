package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-execution/internal/engine"
	"github.com/rxtech-lab/argo-execution/internal/exchange"
	"github.com/rxtech-lab/argo-execution/internal/logger"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

const statusPollInterval = 500 * time.Millisecond

// newEngine wires the exchange gateway and strategy engine from the CLI
// flags. Confirmation prompts are skipped when --yes is set.
func newEngine(cmd *cli.Command, log *logger.Logger) (*engine.Engine, error) {
	config, err := exchange.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.Bool("testnet") {
		config.Testnet = true
	}

	gateway, err := exchange.NewBinanceGateway(config, log)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{}
	if !cmd.Bool("yes") {
		opts = append(opts, engine.WithConfirmation(promptConfirmation))
	}

	return engine.NewEngine(gateway, log, opts...), nil
}

// promptConfirmation asks the operator to approve a strategy before any
// order is placed.
func promptConfirmation(summary string) bool {
	fmt.Printf("Place %s? [y/N]: ", summary)

	reader := bufio.NewReader(os.Stdin)

	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))

	return answer == "y" || answer == "yes"
}

func printSnapshot(snapshot types.StrategySnapshot) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		fmt.Println(snapshot.ID)

		return
	}

	fmt.Println(string(data))
}

// awaitStrategy blocks until the strategy leaves the registry or turns
// terminal, stopping it when the context is cancelled (Ctrl-C).
func awaitStrategy(ctx context.Context, eng *engine.Engine, id string) error {
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nstopping strategy...")

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := eng.Stop(stopCtx, id); err != nil && !errors.HasCode(err, errors.ErrCodeStrategyNotFound) {
				return err
			}

			return nil
		case <-time.After(statusPollInterval):
		}

		snapshot, err := eng.GetStrategy(id)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeStrategyNotFound) {
				// Terminal strategies leave the registry.
				return nil
			}

			return err
		}

		if snapshot.Status != string(types.OCOStatusActive) &&
			snapshot.Status != string(types.GridStatusActive) &&
			snapshot.Status != string(types.TWAPStatusActive) {
			printSnapshot(snapshot)

			return nil
		}
	}
}

func ocoAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := newEngine(cmd, log)
	if err != nil {
		return err
	}

	req := types.OCORequest{
		Symbol:          cmd.String("symbol"),
		Side:            types.Side(strings.ToUpper(cmd.String("side"))),
		Quantity:        cmd.Float("quantity"),
		TakeProfitPrice: cmd.Float("take-profit"),
		StopPrice:       cmd.Float("stop-price"),
	}
	if cmd.IsSet("stop-limit") {
		req.StopLimitPrice = optional.Some(cmd.Float("stop-limit"))
	}

	snapshot, err := eng.StartOCO(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("OCO bracket active: %s\n", snapshot.ID)
	printSnapshot(snapshot)

	return awaitStrategy(ctx, eng, snapshot.ID)
}

func gridAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := newEngine(cmd, log)
	if err != nil {
		return err
	}

	req := types.GridRequest{
		Symbol:           cmd.String("symbol"),
		QuantityPerLevel: cmd.Float("quantity"),
		GridCount:        int(cmd.Int("count")),
		LowerPrice:       cmd.Float("lower"),
		UpperPrice:       cmd.Float("upper"),
	}

	snapshot, err := eng.StartGrid(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("grid active: %s (Ctrl-C to stop)\n", snapshot.ID)
	printSnapshot(snapshot)

	// A grid has no natural completion; it runs until interrupted.
	return awaitStrategy(ctx, eng, snapshot.ID)
}

func twapAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := newEngine(cmd, log)
	if err != nil {
		return err
	}

	req := types.TWAPRequest{
		Symbol:          cmd.String("symbol"),
		Side:            types.Side(strings.ToUpper(cmd.String("side"))),
		TotalQuantity:   cmd.Float("quantity"),
		DurationMinutes: int(cmd.Int("duration")),
		IntervalMinutes: int(cmd.Int("interval")),
	}
	if cmd.IsSet("price-limit") {
		req.PriceLimit = optional.Some(cmd.Float("price-limit"))
	}

	snapshot, err := eng.StartTWAP(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("TWAP schedule active: %s\n", snapshot.ID)

	bar := progressbar.NewOptions(snapshot.TWAP.NumChunks,
		progressbar.OptionSetDescription("chunks filled"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
	)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\ncancelling schedule...")

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := eng.Stop(stopCtx, snapshot.ID); err != nil && !errors.HasCode(err, errors.ErrCodeStrategyNotFound) {
				return err
			}

			return nil
		case <-time.After(statusPollInterval):
		}

		current, err := eng.GetStrategy(snapshot.ID)
		if err != nil {
			return err
		}

		_ = bar.Set(current.TWAP.ExecutedChunks)

		if current.Status != string(types.TWAPStatusActive) {
			fmt.Println()
			printSnapshot(current)

			return nil
		}
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the exchange configuration file",
			Value:   "config.yaml",
		},
		&cli.BoolFlag{
			Name:  "testnet",
			Usage: "Route all requests to the futures testnet",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "Skip the confirmation prompt",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "orders",
		Usage: "Execute OCO, grid, and TWAP strategies from primitive exchange orders",
		Commands: []*cli.Command{
			{
				Name:  "oco",
				Usage: "Place a one-cancels-other take-profit/stop bracket",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Trading pair, e.g. BTCUSDT", Required: true},
					&cli.StringFlag{Name: "side", Usage: "Order side: BUY or SELL", Required: true},
					&cli.FloatFlag{Name: "quantity", Aliases: []string{"q"}, Usage: "Quantity for both legs", Required: true},
					&cli.FloatFlag{Name: "take-profit", Usage: "Take-profit limit price", Required: true},
					&cli.FloatFlag{Name: "stop-price", Usage: "Stop trigger price", Required: true},
					&cli.FloatFlag{Name: "stop-limit", Usage: "Stop-limit price (defaults to the trigger price)"},
				),
				Action: ocoAction,
			},
			{
				Name:  "grid",
				Usage: "Run a grid of resting orders across a price range",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Trading pair, e.g. BTCUSDT", Required: true},
					&cli.FloatFlag{Name: "quantity", Aliases: []string{"q"}, Usage: "Quantity per grid level", Required: true},
					&cli.IntFlag{Name: "count", Usage: "Number of grid levels (at least 2)", Required: true},
					&cli.FloatFlag{Name: "lower", Usage: "Lower bound of the price range", Required: true},
					&cli.FloatFlag{Name: "upper", Usage: "Upper bound of the price range", Required: true},
				),
				Action: gridAction,
			},
			{
				Name:  "twap",
				Usage: "Execute a large order in time-spaced chunks",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Trading pair, e.g. BTCUSDT", Required: true},
					&cli.StringFlag{Name: "side", Usage: "Order side: BUY or SELL", Required: true},
					&cli.FloatFlag{Name: "quantity", Aliases: []string{"q"}, Usage: "Total quantity to execute", Required: true},
					&cli.IntFlag{Name: "duration", Aliases: []string{"d"}, Usage: "Total duration in minutes", Required: true},
					&cli.IntFlag{Name: "interval", Aliases: []string{"i"}, Usage: "Minutes between chunks", Required: true},
					&cli.FloatFlag{Name: "price-limit", Usage: "Execute chunks as limit orders at this price"},
				),
				Action: twapAction,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
