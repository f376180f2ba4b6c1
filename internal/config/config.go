// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable parameter of the sale and vesting engine.
// All monetary values are integer base units of the payment token.
type Config struct {
	PassPrice             uint64        `mapstructure:"pass_price"`
	BuyTeamFeeBps         uint64        `mapstructure:"buy_team_fee_bps"`
	SellTeamFeeBps        uint64        `mapstructure:"sell_team_fee_bps"`
	FounderFeeBps         uint64        `mapstructure:"founder_fee_bps"`
	LockedLiquidityBps    uint64        `mapstructure:"locked_liquidity_bps"`
	EarlyUnlockPenaltyBps uint64        `mapstructure:"early_unlock_penalty_bps"`
	FoundersCapacity      int           `mapstructure:"founders_capacity"`
	CrankerReward         uint64        `mapstructure:"cranker_reward"`
	AllowedLockDays       []uint64      `mapstructure:"allowed_lock_days"`
	CrankInterval         time.Duration `mapstructure:"crank_interval"`
	CrankWorkers          int           `mapstructure:"crank_workers"`
	PostgresURL           string        `mapstructure:"postgres_url"`
	DebugLogging          bool          `mapstructure:"debug_logging"`
	LogFile               string        `mapstructure:"log_file"`
}

const (
	DefaultPassPrice             = 10_000 * 1_000_000 // 10,000 payment tokens at 6 decimals
	DefaultBuyTeamFeeBps         = 200
	DefaultSellTeamFeeBps        = 500
	DefaultFounderFeeBps         = 50
	DefaultLockedLiquidityBps    = 750
	DefaultEarlyUnlockPenaltyBps = 50
	DefaultFoundersCapacity      = 60
	DefaultCrankerReward         = 1_000_000
	DefaultCrankInterval         = 5 * time.Second
	DefaultCrankWorkers          = 4
)

// DefaultAllowedLockDays mirrors the lock periods the sale contract accepts.
// Zero is the degenerate "claimable immediately" tier.
var DefaultAllowedLockDays = []uint64{0, 3, 7, 14, 31, 60, 90}

// Default returns a config populated with production defaults, for callers
// that do not load a file (tests, embedded use).
func Default() *Config {
	return &Config{
		PassPrice:             DefaultPassPrice,
		BuyTeamFeeBps:         DefaultBuyTeamFeeBps,
		SellTeamFeeBps:        DefaultSellTeamFeeBps,
		FounderFeeBps:         DefaultFounderFeeBps,
		LockedLiquidityBps:    DefaultLockedLiquidityBps,
		EarlyUnlockPenaltyBps: DefaultEarlyUnlockPenaltyBps,
		FoundersCapacity:      DefaultFoundersCapacity,
		CrankerReward:         DefaultCrankerReward,
		AllowedLockDays:       append([]uint64(nil), DefaultAllowedLockDays...),
		CrankInterval:         DefaultCrankInterval,
		CrankWorkers:          DefaultCrankWorkers,
		DebugLogging:          true,
	}
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"pass_price":               DefaultPassPrice,
		"buy_team_fee_bps":         DefaultBuyTeamFeeBps,
		"sell_team_fee_bps":        DefaultSellTeamFeeBps,
		"founder_fee_bps":          DefaultFounderFeeBps,
		"locked_liquidity_bps":     DefaultLockedLiquidityBps,
		"early_unlock_penalty_bps": DefaultEarlyUnlockPenaltyBps,
		"founders_capacity":        DefaultFoundersCapacity,
		"cranker_reward":           DefaultCrankerReward,
		"allowed_lock_days":        DefaultAllowedLockDays,
		"crank_interval":           DefaultCrankInterval,
		"crank_workers":            DefaultCrankWorkers,
		"debug_logging":            true,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.PassPrice == 0 {
		return errors.New("pass_price must be positive")
	}
	if cfg.BuyTeamFeeBps+cfg.FounderFeeBps+cfg.LockedLiquidityBps >= 10_000 {
		return errors.New("buy-side fee shares must sum below 100%")
	}
	if cfg.SellTeamFeeBps+cfg.FounderFeeBps+cfg.LockedLiquidityBps+cfg.EarlyUnlockPenaltyBps >= 10_000 {
		return errors.New("sell-side fee shares must sum below 100%")
	}
	if cfg.FoundersCapacity <= 0 {
		return errors.New("founders_capacity must be positive")
	}
	if len(cfg.AllowedLockDays) == 0 {
		return errors.New("allowed_lock_days is empty")
	}
	if cfg.CrankInterval <= 0 {
		return errors.New("invalid crank_interval")
	}
	if cfg.CrankWorkers <= 0 {
		return errors.New("invalid crank_workers count")
	}
	return nil
}

// LockDayAllowed reports whether the given lock duration is accepted.
func (c *Config) LockDayAllowed(days uint64) bool {
	for _, d := range c.AllowedLockDays {
		if d == days {
			return true
		}
	}
	return false
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("UPONLY_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if dsn := v.GetString("POSTGRES_URL"); dsn != "" {
		v.Set("postgres_url", dsn)
	}
}
