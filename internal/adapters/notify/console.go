package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/baseliq/liquidator/internal/domain"
)

// Console implements ports.Notifier, rendering status reports and alerts to
// a plain writer.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a notifier writing to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyStatus prints a StatusReport, either as a table or a single
// compact line.
func (c *Console) NotifyStatus(_ context.Context, report domain.StatusReport) error {
	if c.table {
		c.printTable(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// NotifyAlert prints a circuit-breaker state transition.
func (c *Console) NotifyAlert(_ context.Context, alert domain.BreakerAlert) error {
	fmt.Fprintf(c.out, "[%s] circuit breaker → %s (%s): %s\n",
		alert.Timestamp.Format("15:04:05"), alert.NewState, alert.Cause, alert.Message)
	return nil
}

func (c *Console) printCompact(report domain.StatusReport) {
	now := time.Now().Format("15:04:05")
	cond := report.CurrentConditions

	vol := "n/a"
	if cond.VolatilityPercent != nil {
		vol = fmt.Sprintf("%.2f%%", *cond.VolatilityPercent)
	}
	gasMult := "n/a"
	if cond.GasMultiplier != nil {
		gasMult = fmt.Sprintf("%dx", *cond.GasMultiplier)
	}

	fmt.Fprintf(c.out, "[%s] breaker:%s attempts/min:%d ok/min:%d vol:%s gas:%s blocked:%d assets:%s\n",
		now, report.State, cond.AttemptsPerMinute, cond.SucceededPerMinute, vol, gasMult,
		report.Stats.TotalLiquidationsBlocked, assetList(report.TrackedAssets))
}

func (c *Console) printTable(report domain.StatusReport) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")

	cond := report.CurrentConditions
	vol := "n/a"
	if cond.VolatilityPercent != nil {
		vol = fmt.Sprintf("%.2f%%", *cond.VolatilityPercent)
	}
	gasMult := "n/a"
	if cond.GasMultiplier != nil {
		gasMult = fmt.Sprintf("%dx", *cond.GasMultiplier)
	}
	sinceActivation := "n/a"
	if report.TimeSinceActivation != nil {
		sinceActivation = report.TimeSinceActivation.Round(time.Second).String()
	}

	table.Append("state", string(report.State))
	table.Append("volatility", vol)
	table.Append("attempts/min", fmt.Sprintf("%d", cond.AttemptsPerMinute))
	table.Append("succeeded/min", fmt.Sprintf("%d", cond.SucceededPerMinute))
	table.Append("gas multiplier", gasMult)
	table.Append("window samples", fmt.Sprintf("%d", cond.DataPointsCount))
	table.Append("time since activation", sinceActivation)
	table.Append("total activations", fmt.Sprintf("%d", report.Stats.TotalActivations))
	table.Append("blocked liquidations", fmt.Sprintf("%d", report.Stats.TotalLiquidationsBlocked))
	table.Append("volatility triggers", fmt.Sprintf("%d", report.Stats.VolatilityTriggers))
	table.Append("flood triggers", fmt.Sprintf("%d", report.Stats.FloodTriggers))
	table.Append("gas spike triggers", fmt.Sprintf("%d", report.Stats.GasSpikeTriggers))
	table.Append("last activation reason", report.Stats.LastActivationReason)
	table.Append("tracked assets", assetList(report.TrackedAssets))

	table.Render()
}

// assetList renders tracked asset symbols for the status output, so it
// reads e.g. "WETH, USDC" instead of raw reserve addresses.
func assetList(symbols []string) string {
	if len(symbols) == 0 {
		return "n/a"
	}
	return strings.Join(symbols, ", ")
}
