package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/ports"
)

// Console implementa ports.Notifier escribiendo a stdout.
type Console struct {
	out     io.Writer
	verbose bool
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// Notify imprime el evento en una línea. Los eventos que exigen atención del
// operador (UNKNOWN, fallback de estado, circuit trip) llevan prefijo "!!".
func (c *Console) Notify(_ context.Context, ev domain.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	prefix := ">>"
	switch ev.Kind {
	case domain.EventOrderUnknown, domain.EventStateFallback, domain.EventCircuitTripped:
		prefix = "!!"
	case domain.EventReconciled:
		// informativo: solo en modo verbose
		if !c.verbose {
			return nil
		}
	}

	scope := ""
	if ev.Strategy != "" || ev.Symbol != "" {
		scope = fmt.Sprintf(" %s/%s", ev.Strategy, ev.Symbol)
	}
	fmt.Fprintf(c.out, "[%s] %s %s%s: %s\n",
		at.Format("15:04:05"), prefix, ev.Kind, scope, ev.Detail)
	return nil
}

// Summary imprime el equity del tick y, en modo verbose (o si hay posiciones
// abiertas), la tabla de posiciones.
func (c *Console) Summary(_ context.Context, state *domain.PortfolioState, snap domain.EquitySnapshot) error {
	fmt.Fprintf(c.out, "[%s] equity $%.2f | cash $%.2f | unrealized $%+.2f | open %d\n",
		snap.Timestamp.Format("15:04:05"),
		snap.TotalEquity, snap.Cash, snap.UnrealizedPnL, snap.OpenPositions)

	if open := state.OpenPositions(); len(open) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Strategy", "Symbol", "Qty", "Entry", "Stop", "Age")

		now := snap.Timestamp
		for _, pos := range open {
			table.Append(
				pos.Strategy,
				pos.Symbol,
				fmt.Sprintf("%.6f", pos.Quantity),
				fmt.Sprintf("%.2f", pos.EntryPrice),
				fmt.Sprintf("%.2f", pos.StopPrice),
				ageLabel(now.Sub(pos.OpenedAt)),
			)
		}
		table.Render()
	}

	if unresolved := state.UnresolvedOrders(); len(unresolved) > 0 {
		fmt.Fprintf(c.out, "  !! %d order(s) UNKNOWN, pending reconciliation\n", len(unresolved))
	}
	return nil
}

// ageLabel formatea la antigüedad de una posición de forma compacta.
func ageLabel(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	case d < 48*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
