package bybit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kumotrade/kumobot/internal/domain"
)

// --- tipos de respuesta v5 ---

type klineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"` // [startMs, open, high, low, close, volume, turnover], más reciente primero
}

type walletResult struct {
	List []struct {
		TotalAvailableBalance string `json:"totalAvailableBalance"`
		Coin                  []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
		} `json:"coin"`
	} `json:"list"`
}

type createResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderEntry struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	OrderStatus string `json:"orderStatus"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
	CumExecFee  string `json:"cumExecFee"`
}

type orderListResult struct {
	List []orderEntry `json:"list"`
}

// --- mapping ---

// intervalCodes traduce el intervalo de config al código v5 de Bybit.
var intervalCodes = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W",
}

var intervalDurations = map[string]time.Duration{
	"1m": time.Minute, "3m": 3 * time.Minute, "5m": 5 * time.Minute,
	"15m": 15 * time.Minute, "30m": 30 * time.Minute,
	"1h": time.Hour, "2h": 2 * time.Hour, "4h": 4 * time.Hour,
	"6h": 6 * time.Hour, "12h": 12 * time.Hour,
	"1d": 24 * time.Hour, "1w": 7 * 24 * time.Hour,
}

func bybitInterval(interval string) (string, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return "", fmt.Errorf("unsupported interval %q", interval)
	}
	return code, nil
}

func intervalDuration(interval string) time.Duration {
	return intervalDurations[interval]
}

// mapKlines convierte la respuesta (más reciente primero) a velas ordenadas
// de más antigua a más reciente, descartando la vela aún en formación.
func mapKlines(list [][]string, interval time.Duration) ([]domain.Candle, error) {
	bars := make([]domain.Candle, 0, len(list))
	now := time.Now()

	for i := len(list) - 1; i >= 0; i-- {
		row := list[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
		}

		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse kline timestamp %q: %w", row[0], err)
		}
		bar := domain.Candle{Timestamp: time.UnixMilli(ms).UTC()}

		fields := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume}
		for j, dst := range fields {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("parse kline field %d %q: %w", j+1, row[j+1], err)
			}
			*dst = v
		}
		bars = append(bars, bar)
	}

	// La última vela puede estar sin cerrar: las señales solo usan velas cerradas.
	if n := len(bars); n > 0 && interval > 0 {
		if bars[n-1].Timestamp.Add(interval).After(now) {
			bars = bars[:n-1]
		}
	}

	if err := domain.ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// mapBalance extrae el balance disponible de la cuenta unificada.
func mapBalance(result walletResult) (float64, error) {
	if len(result.List) == 0 {
		return 0, fmt.Errorf("bybit.GetBalance: empty wallet list")
	}
	acct := result.List[0]

	if acct.TotalAvailableBalance != "" {
		v, err := strconv.ParseFloat(acct.TotalAvailableBalance, 64)
		if err != nil {
			return 0, fmt.Errorf("bybit.GetBalance: parse %q: %w", acct.TotalAvailableBalance, err)
		}
		return v, nil
	}

	for _, coin := range acct.Coin {
		if coin.Coin == "USDT" {
			v, err := strconv.ParseFloat(coin.WalletBalance, 64)
			if err != nil {
				return 0, fmt.Errorf("bybit.GetBalance: parse %q: %w", coin.WalletBalance, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("bybit.GetBalance: no USDT balance in response")
}

// mapOrderStatus traduce el estado de Bybit al ciclo de vida del core.
func mapOrderStatus(entry orderEntry) (domain.OrderStatusReport, error) {
	report := domain.OrderStatusReport{}

	parse := func(s string) float64 {
		if s == "" {
			return 0
		}
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	report.FilledQuantity = parse(entry.CumExecQty)
	report.FilledPrice = parse(entry.AvgPrice)
	report.Fee = parse(entry.CumExecFee)

	switch entry.OrderStatus {
	case "Filled":
		report.Status = domain.OrderFilled
	case "PartiallyFilled", "New", "Untriggered", "Created":
		report.Status = domain.OrderAcknowledged
	case "Cancelled", "Rejected", "Deactivated", "PartiallyFilledCanceled":
		// Una orden cancelada con ejecución parcial movió fondos de verdad:
		// para el portfolio es un fill por la cantidad ejecutada.
		if report.FilledQuantity > 0 {
			report.Status = domain.OrderFilled
		} else {
			report.Status = domain.OrderFailed
		}
	default:
		return report, fmt.Errorf("bybit: unknown order status %q", entry.OrderStatus)
	}
	return report, nil
}

func bybitSide(side domain.OrderSide) string {
	if side == domain.SideBuy {
		return "Buy"
	}
	return "Sell"
}

// formatQty evita notación científica en cantidades pequeñas.
func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}
