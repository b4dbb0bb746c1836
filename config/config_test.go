package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumotrade/kumobot/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
bot:
  paper: true
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Bot.Symbol)
	assert.Equal(t, "1h", cfg.Bot.Interval)
	assert.Equal(t, 4000.0, cfg.Bot.InitialCapital)
	assert.Equal(t, 9, cfg.Strategies.Ichimoku.Tenkan)
	assert.Equal(t, 26, cfg.Strategies.Ichimoku.Kijun)
	assert.Equal(t, 52, cfg.Strategies.Ichimoku.SenkouB)
	assert.Equal(t, 30.0, cfg.Strategies.Reversal.Oversold)
	assert.Equal(t, 0.015, cfg.Risk.RiskPerTrade)
	assert.Equal(t, 0.9, cfg.Risk.IchimokuAllocation)
	assert.Equal(t, 0.1, cfg.Risk.ReversalAllocation)
	assert.Equal(t, 3, cfg.Execution.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase())
	assert.Equal(t, 10*time.Second, cfg.ExecutionTimeout())
	assert.Equal(t, 30*time.Minute, cfg.BreakerCooldown())
	assert.Equal(t, 48*time.Hour, cfg.MaxHold())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
bot:
  symbol: ETHUSDT
  interval: 4h
  initial_capital: 2500
  paper: true
risk:
  risk_per_trade: 0.02
  ichimoku_allocation: 0.7
  reversal_allocation: 0.2
strategies:
  reversal:
    oversold: 25
    overbought: 75
`))
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Bot.Symbol)
	assert.Equal(t, "4h", cfg.Bot.Interval)
	assert.Equal(t, 2500.0, cfg.Bot.InitialCapital)
	assert.Equal(t, 0.02, cfg.Risk.RiskPerTrade)
	assert.Equal(t, 25.0, cfg.Strategies.Reversal.Oversold)
	assert.Equal(t, 0.7, cfg.Risk.IchimokuAllocation)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesCredentialsAndLog(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "env-key")
	t.Setenv("BYBIT_API_SECRET", "env-secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-secret", cfg.Exchange.APISecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]string{
		"risk too high": `
bot: {paper: true}
risk: {risk_per_trade: 0.9}
`,
		"fee too high": `
bot: {paper: true}
risk: {fee_rate: 0.05}
`,
		"slippage too high": `
bot: {paper: true}
risk: {slippage_rate: 0.02}
`,
		"capital too small": `
bot: {paper: true, initial_capital: 50}
`,
		"allocations exceed one": `
bot: {paper: true}
risk: {ichimoku_allocation: 0.8, reversal_allocation: 0.5}
`,
		"allocation above one": `
bot: {paper: true}
risk: {ichimoku_allocation: 1.5}
`,
		"rsi bands inverted": `
bot: {paper: true}
strategies:
  reversal: {oversold: 80, overbought: 70}
`,
		"tenkan not below kijun": `
bot: {paper: true}
strategies:
  ichimoku: {tenkan: 30, kijun: 26}
`,
	}

	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")

	_, err := config.Load(writeConfig(t, `
bot:
  paper: false
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BYBIT_API_KEY")
}
