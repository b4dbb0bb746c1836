// Package bybit implementa ports.Exchange contra la API REST v5 de Bybit
// (categoría spot). Las órdenes se envían como market orders con orderLinkId
// como clave de idempotencia: reenviar el mismo id nunca duplica el fill.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/execution"
	"github.com/kumotrade/kumobot/internal/ports"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	testnetBaseURL = "https://api-testnet.bybit.com"

	recvWindow = "5000"

	// Rate limits muy por debajo de los documentados (public 120/s,
	// trade 10/s): el bot hace un puñado de requests por tick.
	marketRatePerSec  = 10
	tradeRatePerSec   = 5
	accountRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// retCodes de Bybit que necesitan tratamiento especial.
const (
	retOK            = 0
	retRateLimited   = 10006
	retTimeout       = 10016
	retDuplicateLink = 110072 // orderLinkId ya usado: la orden original existe
)

// Config son las credenciales y el entorno del cliente.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	BaseURL   string // override para tests
}

// Client es el cliente HTTP de Bybit con rate limiting y firma HMAC.
type Client struct {
	http          *http.Client
	baseURL       string
	key           string
	secret        string
	marketLimiter *rate.Limiter
	tradeLimiter  *rate.Limiter
	acctLimiter   *rate.Limiter
	now           func() time.Time
}

var _ ports.Exchange = (*Client)(nil)

// New crea el cliente. Con BaseURL vacío usa producción (o testnet si
// Testnet es true).
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
		if cfg.Testnet {
			base = testnetBaseURL
		}
	}
	return &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		baseURL:       base,
		key:           cfg.APIKey,
		secret:        cfg.APISecret,
		marketLimiter: rate.NewLimiter(marketRatePerSec, 5),
		tradeLimiter:  rate.NewLimiter(tradeRatePerSec, 2),
		acctLimiter:   rate.NewLimiter(accountRatePerSec, 2),
		now:           time.Now,
	}
}

// envelope es la respuesta estándar v5: retCode 0 = éxito.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// FetchCandles devuelve las últimas `limit` velas cerradas, de más antigua a
// más reciente.
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	iv, err := bybitInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("bybit.FetchCandles: %w", err)
	}

	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", symbol)
	q.Set("interval", iv)
	q.Set("limit", strconv.Itoa(limit))

	var result klineResult
	if err := c.get(ctx, c.marketLimiter, "/v5/market/kline", q, false, &result); err != nil {
		return nil, fmt.Errorf("bybit.FetchCandles: %w", err)
	}

	bars, err := mapKlines(result.List, intervalDuration(interval))
	if err != nil {
		return nil, fmt.Errorf("bybit.FetchCandles: %w", err)
	}
	return bars, nil
}

// GetBalance devuelve el balance disponible de la cuenta unificada en USDT.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")
	q.Set("coin", "USDT")

	var result walletResult
	if err := c.get(ctx, c.acctLimiter, "/v5/account/wallet-balance", q, true, &result); err != nil {
		return 0, fmt.Errorf("bybit.GetBalance: %w", err)
	}
	return mapBalance(result)
}

// PlaceOrder envía una market order con orderLinkId = ClientID. No reintenta
// internamente: el caller decide según la clasificación del error.
func (c *Client) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderAck, error) {
	body := map[string]string{
		"category":    "spot",
		"symbol":      req.Symbol,
		"side":        bybitSide(req.Side),
		"orderType":   "Market",
		"qty":         formatQty(req.Quantity),
		"orderLinkId": req.ClientID,
	}
	// Market buy en spot se expresa en quote currency
	if req.Side == domain.SideBuy {
		body["marketUnit"] = "baseCoin"
	}

	var result createResult
	env, err := c.postOnce(ctx, "/v5/order/create", body, &result)
	if err != nil {
		// La petición pudo llegar: el caller debe reconciliar por ClientID.
		return domain.OrderAck{}, execution.Ambiguous(
			fmt.Errorf("bybit.PlaceOrder: %w", err))
	}

	switch env.RetCode {
	case retOK:
		return domain.OrderAck{
			ExchangeOrderID: result.OrderID,
			Status:          domain.OrderAcknowledged,
		}, nil
	case retRateLimited:
		return domain.OrderAck{}, execution.Transient(
			fmt.Errorf("bybit.PlaceOrder: rate limited: %s", env.RetMsg))
	case retTimeout:
		return domain.OrderAck{}, execution.Ambiguous(
			fmt.Errorf("bybit.PlaceOrder: exchange timeout: %s", env.RetMsg))
	case retDuplicateLink:
		// La orden original existe — que la reconciliación la encuentre.
		return domain.OrderAck{}, execution.Ambiguous(
			fmt.Errorf("bybit.PlaceOrder: duplicate orderLinkId %s", req.ClientID))
	default:
		return domain.OrderAck{}, fmt.Errorf("bybit.PlaceOrder: retCode %d: %s",
			env.RetCode, env.RetMsg)
	}
}

// GetOrderStatus consulta por orderLinkId, primero en órdenes activas y
// después en el histórico (las órdenes market ejecutadas pasan ahí rápido).
func (c *Client) GetOrderStatus(ctx context.Context, symbol, clientID string) (domain.OrderStatusReport, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", symbol)
	q.Set("orderLinkId", clientID)

	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		var result orderListResult
		if err := c.get(ctx, c.acctLimiter, path, q, true, &result); err != nil {
			return domain.OrderStatusReport{}, fmt.Errorf("bybit.GetOrderStatus: %w", err)
		}
		if len(result.List) > 0 {
			return mapOrderStatus(result.List[0])
		}
	}

	// Sin rastro en el exchange: la orden nunca llegó.
	return domain.OrderStatusReport{Status: domain.OrderFailed}, nil
}

// CancelOrder cancela por orderLinkId. Una orden ya ejecutada o inexistente
// no es un error para el caller.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientID string) error {
	body := map[string]string{
		"category":    "spot",
		"symbol":      symbol,
		"orderLinkId": clientID,
	}
	var result createResult
	env, err := c.postOnce(ctx, "/v5/order/cancel", body, &result)
	if err != nil {
		return fmt.Errorf("bybit.CancelOrder: %w", err)
	}
	if env.RetCode != retOK {
		slog.Debug("bybit: cancel returned non-zero retCode",
			"ret_code", env.RetCode, "ret_msg", env.RetMsg, "client_id", clientID)
	}
	return nil
}

// get hace un GET con rate limiting y retries. Los GET son idempotentes,
// reintentar siempre es seguro.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, path string, q url.Values, signed bool, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		env, err := c.doGet(ctx, path, q, signed)
		if err != nil {
			lastErr = err
			if attempt == maxRetries {
				break
			}
			c.sleep(ctx, attempt)
			continue
		}

		if env.RetCode == retRateLimited {
			slog.Warn("bybit: rate limited", "path", path, "attempt", attempt+1)
			lastErr = fmt.Errorf("rate limited: %s", env.RetMsg)
			c.sleep(ctx, attempt)
			continue
		}
		if env.RetCode != retOK {
			return fmt.Errorf("retCode %d: %s", env.RetCode, env.RetMsg)
		}
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	}
	return execution.Transient(fmt.Errorf("exhausted %d retries: %w", maxRetries, lastErr))
}

func (c *Client) doGet(ctx context.Context, path string, q url.Values, signed bool) (*envelope, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		c.sign(req, q.Encode())
	}
	return c.do(req)
}

// postOnce hace UN único POST firmado. El controller de ejecución es quien
// decide los reintentos de órdenes.
func (c *Client) postOnce(ctx context.Context, path string, body map[string]string, out any) (*envelope, error) {
	if err := c.tradeLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(b)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.sign(req, string(b))

	env, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if env.RetCode == retOK && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return env, nil
}

// do ejecuta la request y decodifica el envelope v5.
func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
