package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	Risk       RiskConfig       `yaml:"risk"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// BotConfig controla el ciclo principal.
type BotConfig struct {
	Symbol          string  `yaml:"symbol"`
	Interval        string  `yaml:"interval"` // 15m | 1h | 4h | 1d ...
	TickSeconds     int     `yaml:"tick_seconds"`
	InitialCapital  float64 `yaml:"initial_capital"`
	Paper           bool    `yaml:"paper"`
	FetchRetries    int     `yaml:"fetch_retries"`
	CandleFetchSize int     `yaml:"candle_fetch_size"`
}

// RiskConfig controla el sizing y los costes simulados.
type RiskConfig struct {
	RiskPerTrade       float64 `yaml:"risk_per_trade"`
	FeeRate            float64 `yaml:"fee_rate"`
	SlippageRate       float64 `yaml:"slippage_rate"`
	MinQtyStep         float64 `yaml:"min_qty_step"`
	IchimokuAllocation float64 `yaml:"ichimoku_allocation"`
	ReversalAllocation float64 `yaml:"reversal_allocation"`
}

// StrategiesConfig agrupa los parámetros de cada estrategia.
type StrategiesConfig struct {
	Ichimoku IchimokuConfig `yaml:"ichimoku"`
	Reversal ReversalConfig `yaml:"reversal"`
}

// IchimokuConfig son los periodos y stops de la estrategia de tendencia.
type IchimokuConfig struct {
	Tenkan       int     `yaml:"tenkan"`
	Kijun        int     `yaml:"kijun"`
	SenkouB      int     `yaml:"senkou_b"`
	Displacement int     `yaml:"displacement"`
	ATRPeriod    int     `yaml:"atr_period"`
	StopATRMult  float64 `yaml:"stop_atr_mult"`
}

// ReversalConfig son las bandas RSI y stops de la estrategia de reversión.
type ReversalConfig struct {
	Period       int     `yaml:"period"`
	Oversold     float64 `yaml:"oversold"`
	Overbought   float64 `yaml:"overbought"`
	ATRPeriod    int     `yaml:"atr_period"`
	StopATRMult  float64 `yaml:"stop_atr_mult"`
	MaxHoldHours int     `yaml:"max_hold_hours"`
}

// ExecutionConfig controla reintentos, timeouts y el circuit breaker.
type ExecutionConfig struct {
	MaxAttempts            int `yaml:"max_attempts"`
	BackoffBaseMillis      int `yaml:"backoff_base_ms"`
	TimeoutSeconds         int `yaml:"timeout_seconds"`
	BreakerFailures        int `yaml:"breaker_failures"`
	BreakerCooldownMinutes int `yaml:"breaker_cooldown_minutes"`
}

// ExchangeConfig apunta al exchange real. Las credenciales SOLO entran por
// variables de entorno (BYBIT_API_KEY / BYBIT_API_SECRET), nunca por YAML.
type ExchangeConfig struct {
	Testnet bool   `yaml:"testnet"`
	BaseURL string `yaml:"base_url"` // override para tests

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	StatePath  string `yaml:"state_path"`
	JournalDSN string `yaml:"journal_dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe, aplica defaults y valida. Los valores de entorno sobreescriben los
// del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// TickInterval devuelve el intervalo entre ticks como time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Bot.TickSeconds) * time.Second
}

// BackoffBase devuelve la base del backoff exponencial de ejecución.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Execution.BackoffBaseMillis) * time.Millisecond
}

// ExecutionTimeout devuelve el timeout por intento de orden.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Execution.TimeoutSeconds) * time.Second
}

// BreakerCooldown devuelve la ventana de enfriamiento del circuit breaker.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Execution.BreakerCooldownMinutes) * time.Minute
}

// MaxHold devuelve el periodo máximo de retención de la estrategia de reversión.
func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.Strategies.Reversal.MaxHoldHours) * time.Hour
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.Symbol == "" {
		cfg.Bot.Symbol = "BTCUSDT"
	}
	if cfg.Bot.Interval == "" {
		cfg.Bot.Interval = "1h"
	}
	if cfg.Bot.TickSeconds <= 0 {
		cfg.Bot.TickSeconds = 60
	}
	if cfg.Bot.InitialCapital <= 0 {
		cfg.Bot.InitialCapital = 4000
	}
	if cfg.Bot.FetchRetries <= 0 {
		cfg.Bot.FetchRetries = 3
	}
	if cfg.Bot.CandleFetchSize <= 0 {
		cfg.Bot.CandleFetchSize = 200
	}

	if cfg.Risk.RiskPerTrade <= 0 {
		cfg.Risk.RiskPerTrade = 0.015
	}
	if cfg.Risk.FeeRate <= 0 {
		cfg.Risk.FeeRate = 0.001
	}
	if cfg.Risk.SlippageRate <= 0 {
		cfg.Risk.SlippageRate = 0.0005
	}
	if cfg.Risk.MinQtyStep <= 0 {
		cfg.Risk.MinQtyStep = 0.000001
	}
	if cfg.Risk.IchimokuAllocation <= 0 {
		cfg.Risk.IchimokuAllocation = 0.9
	}
	if cfg.Risk.ReversalAllocation <= 0 {
		cfg.Risk.ReversalAllocation = 0.1
	}

	ich := &cfg.Strategies.Ichimoku
	if ich.Tenkan <= 0 {
		ich.Tenkan = 9
	}
	if ich.Kijun <= 0 {
		ich.Kijun = 26
	}
	if ich.SenkouB <= 0 {
		ich.SenkouB = 52
	}
	if ich.Displacement <= 0 {
		ich.Displacement = 26
	}
	if ich.ATRPeriod <= 0 {
		ich.ATRPeriod = 14
	}
	if ich.StopATRMult <= 0 {
		ich.StopATRMult = 2.0
	}

	rev := &cfg.Strategies.Reversal
	if rev.Period <= 0 {
		rev.Period = 14
	}
	if rev.Oversold <= 0 {
		rev.Oversold = 30
	}
	if rev.Overbought <= 0 {
		rev.Overbought = 70
	}
	if rev.ATRPeriod <= 0 {
		rev.ATRPeriod = 14
	}
	if rev.StopATRMult <= 0 {
		rev.StopATRMult = 1.5
	}
	if rev.MaxHoldHours <= 0 {
		rev.MaxHoldHours = 48
	}

	exe := &cfg.Execution
	if exe.MaxAttempts <= 0 {
		exe.MaxAttempts = 3
	}
	if exe.BackoffBaseMillis <= 0 {
		exe.BackoffBaseMillis = 500
	}
	if exe.TimeoutSeconds <= 0 {
		exe.TimeoutSeconds = 10
	}
	if exe.BreakerFailures <= 0 {
		exe.BreakerFailures = 3
	}
	if exe.BreakerCooldownMinutes <= 0 {
		exe.BreakerCooldownMinutes = 30
	}

	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = "kumobot_state.json"
	}
	if cfg.Storage.JournalDSN == "" {
		cfg.Storage.JournalDSN = "kumobot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate rechaza configuraciones fuera de rango en el arranque, antes de
// tocar estado o exchange.
func (c *Config) Validate() error {
	b := c.Bot
	if b.InitialCapital < 100 || b.InitialCapital > 1_000_000 {
		return fmt.Errorf("config.Validate: initial_capital %.2f outside [100, 1000000]", b.InitialCapital)
	}

	r := c.Risk
	if r.RiskPerTrade < 0.001 || r.RiskPerTrade > 0.5 {
		return fmt.Errorf("config.Validate: risk_per_trade %.4f outside [0.001, 0.5]", r.RiskPerTrade)
	}
	if r.FeeRate < 0 || r.FeeRate > 0.01 {
		return fmt.Errorf("config.Validate: fee_rate %.4f outside [0, 0.01]", r.FeeRate)
	}
	if r.SlippageRate < 0 || r.SlippageRate > 0.01 {
		return fmt.Errorf("config.Validate: slippage_rate %.4f outside [0, 0.01]", r.SlippageRate)
	}
	for name, alloc := range map[string]float64{
		"ichimoku_allocation": r.IchimokuAllocation,
		"reversal_allocation": r.ReversalAllocation,
	} {
		if alloc <= 0 || alloc > 1 {
			return fmt.Errorf("config.Validate: %s %.4f outside (0, 1]", name, alloc)
		}
	}
	if sum := r.IchimokuAllocation + r.ReversalAllocation; sum > 1.0+1e-9 {
		return fmt.Errorf("config.Validate: allocations sum %.4f exceeds 1.0", sum)
	}

	ich := c.Strategies.Ichimoku
	if ich.Tenkan >= ich.Kijun {
		return fmt.Errorf("config.Validate: ichimoku tenkan %d must be < kijun %d", ich.Tenkan, ich.Kijun)
	}
	rev := c.Strategies.Reversal
	if rev.Oversold >= rev.Overbought {
		return fmt.Errorf("config.Validate: rsi oversold %.1f must be < overbought %.1f", rev.Oversold, rev.Overbought)
	}

	if !c.Bot.Paper && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("config.Validate: live mode requires BYBIT_API_KEY and BYBIT_API_SECRET")
	}
	return nil
}
