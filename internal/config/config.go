package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// StakeTier is one entry-stake class a room can be created in.
type StakeTier struct {
	ID    string `json:"id"`
	Stake int64  `json:"stake"`
	// BotBackfill marks tiers whose stalled rooms may be topped up with
	// automated players.
	BotBackfill bool `json:"bot_backfill"`
}

// GameConfig holds stake tiers and the room lifecycle timings.
type GameConfig struct {
	TaxRate     float64     `json:"tax_rate"`
	DefaultTier string      `json:"default_tier"`
	Tiers       []StakeTier `json:"tiers"`

	// Lifecycle sweep timings, all in seconds.
	FillTimeoutSeconds    int `json:"fill_timeout_seconds"`
	SettleDelaySeconds    int `json:"settle_delay_seconds"`
	TurnTimeoutSeconds    int `json:"turn_timeout_seconds"`
	AbandonTimeoutSeconds int `json:"abandon_timeout_seconds"`
	RoundIntervalSeconds  int `json:"round_interval_seconds"`

	// DefaultTargetScore is the points-mode target when the creator does not
	// pick one.
	DefaultTargetScore int `json:"default_target_score"`
}

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// Fallbacks used when the config file is missing or a field is unset, so a
// bare deployment still behaves sanely.
const (
	defaultStake          = int64(10)
	defaultFillTimeout    = 30
	defaultSettleDelay    = 10
	defaultTurnTimeout    = 20
	defaultAbandonTimeout = 2 * 60 * 60
	defaultRoundInterval  = 5
	defaultTargetScore    = 100
)

// LoadGameConfig loads the game configuration from the given path.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read game config: %w", err)
			return
		}

		var c GameConfig
		if err := json.Unmarshal(data, &c); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal game config: %w", err)
			return
		}
		applyDefaults(&c)
		cfg = &c
	})
	return loadErr
}

func applyDefaults(c *GameConfig) {
	if c.FillTimeoutSeconds <= 0 {
		c.FillTimeoutSeconds = defaultFillTimeout
	}
	if c.SettleDelaySeconds <= 0 {
		c.SettleDelaySeconds = defaultSettleDelay
	}
	if c.TurnTimeoutSeconds <= 0 {
		c.TurnTimeoutSeconds = defaultTurnTimeout
	}
	if c.AbandonTimeoutSeconds <= 0 {
		c.AbandonTimeoutSeconds = defaultAbandonTimeout
	}
	if c.RoundIntervalSeconds <= 0 {
		c.RoundIntervalSeconds = defaultRoundInterval
	}
	if c.DefaultTargetScore <= 0 {
		c.DefaultTargetScore = defaultTargetScore
	}
}

// GetGameConfig returns the loaded configuration, or built-in defaults when
// no file was loaded.
func GetGameConfig() *GameConfig {
	if cfg == nil {
		c := GameConfig{DefaultTier: "casual"}
		applyDefaults(&c)
		return &c
	}
	return cfg
}

// GetStakeTier resolves a tier by ID, falling back to the default tier.
func GetStakeTier(tierID string) StakeTier {
	c := GetGameConfig()

	target := tierID
	if target == "" {
		target = c.DefaultTier
	}

	for _, tier := range c.Tiers {
		if tier.ID == target {
			return tier
		}
	}
	for _, tier := range c.Tiers {
		if tier.ID == c.DefaultTier {
			return tier
		}
	}
	return StakeTier{ID: c.DefaultTier, Stake: defaultStake, BotBackfill: true}
}

// SetGameConfigForTest replaces the loaded config. Test helper only.
func SetGameConfigForTest(c *GameConfig) {
	if c != nil {
		applyDefaults(c)
	}
	cfg = c
}
