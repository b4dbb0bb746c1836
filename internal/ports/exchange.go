package ports

import (
	"context"

	"github.com/kumotrade/kumobot/internal/domain"
)

// Exchange es la capacidad abstracta de exchange que consume el core: velas,
// balance y ciclo de vida de órdenes. Los detalles de wire (auth, rate
// limits, firmas) viven en los adapters.
type Exchange interface {
	// FetchCandles devuelve las últimas `limit` velas cerradas del símbolo,
	// ordenadas por timestamp creciente.
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)

	// GetBalance devuelve el cash disponible en la divisa de cotización.
	GetBalance(ctx context.Context) (float64, error)

	// PlaceOrder envía una orden market identificada por su client id.
	// Reenviar el mismo client id debe ser idempotente.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderAck, error)

	// GetOrderStatus consulta el estado real de una orden por client id.
	// Es la fuente de verdad para reconciliar órdenes UNKNOWN.
	GetOrderStatus(ctx context.Context, symbol, clientID string) (domain.OrderStatusReport, error)

	// CancelOrder cancela una orden viva por client id.
	CancelOrder(ctx context.Context, symbol, clientID string) error
}
