package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lendpool/crypto"
)

// ReserveConfig declares one reserve the pool serves, with its governance
// switches, risk limits in basis points and the parameters of its interest
// rate curve.
type ReserveConfig struct {
	Asset                   string  `toml:"Asset"`
	Active                  bool    `toml:"Active"`
	Frozen                  bool    `toml:"Frozen"`
	BorrowingEnabled        bool    `toml:"BorrowingEnabled"`
	StableBorrowingEnabled  bool    `toml:"StableBorrowingEnabled"`
	LTVBps                  uint64  `toml:"LTVBps"`
	LiquidationThresholdBps uint64  `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64  `toml:"LiquidationBonusBps"`
	ReserveFactorBps        uint64  `toml:"ReserveFactorBps"`
	BaseRate                float64 `toml:"BaseRate"`
	Slope1                  float64 `toml:"Slope1"`
	Slope2                  float64 `toml:"Slope2"`
	OptimalUtilisation      float64 `toml:"OptimalUtilisation"`
	StableOffset            float64 `toml:"StableOffset"`
}

type Config struct {
	DataDir                 string          `toml:"DataDir"`
	CustodyAddress          string          `toml:"CustodyAddress"`
	TreasuryAddress         string          `toml:"TreasuryAddress"`
	MaxStableLoanPercentBps uint64          `toml:"MaxStableLoanPercentBps"`
	MetricsAddress          string          `toml:"MetricsAddress"`
	Reserves                []ReserveConfig `toml:"reserve"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.MaxStableLoanPercentBps == 0 {
		cfg.MaxStableLoanPercentBps = 2500
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./lendpool-data"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address encodings and basis-point bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CustodyAddress) == "" {
		return fmt.Errorf("config: CustodyAddress is required")
	}
	if _, err := crypto.DecodeAddress(c.CustodyAddress); err != nil {
		return fmt.Errorf("config: invalid CustodyAddress: %w", err)
	}
	if strings.TrimSpace(c.TreasuryAddress) != "" {
		if _, err := crypto.DecodeAddress(c.TreasuryAddress); err != nil {
			return fmt.Errorf("config: invalid TreasuryAddress: %w", err)
		}
	}
	if c.MaxStableLoanPercentBps > 10_000 {
		return fmt.Errorf("config: MaxStableLoanPercentBps %d exceeds 10000", c.MaxStableLoanPercentBps)
	}
	seen := make(map[string]struct{}, len(c.Reserves))
	for i, reserve := range c.Reserves {
		if strings.TrimSpace(reserve.Asset) == "" {
			return fmt.Errorf("config: reserve %d: Asset is required", i)
		}
		if _, err := crypto.DecodeAddress(reserve.Asset); err != nil {
			return fmt.Errorf("config: reserve %d: invalid Asset: %w", i, err)
		}
		if _, dup := seen[reserve.Asset]; dup {
			return fmt.Errorf("config: reserve %d: duplicate Asset %s", i, reserve.Asset)
		}
		seen[reserve.Asset] = struct{}{}
		if reserve.LiquidationThresholdBps > 10_000 {
			return fmt.Errorf("config: reserve %d: LiquidationThresholdBps %d exceeds 10000", i, reserve.LiquidationThresholdBps)
		}
		if reserve.LTVBps > reserve.LiquidationThresholdBps {
			return fmt.Errorf("config: reserve %d: LTVBps %d exceeds LiquidationThresholdBps %d", i, reserve.LTVBps, reserve.LiquidationThresholdBps)
		}
		if reserve.ReserveFactorBps > 10_000 {
			return fmt.Errorf("config: reserve %d: ReserveFactorBps %d exceeds 10000", i, reserve.ReserveFactorBps)
		}
		if reserve.OptimalUtilisation <= 0 || reserve.OptimalUtilisation >= 1 {
			return fmt.Errorf("config: reserve %d: OptimalUtilisation must be in (0, 1)", i)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file with a fresh
// custody key.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		DataDir:                 "./lendpool-data",
		CustodyAddress:          key.PubKey().Address().String(),
		MaxStableLoanPercentBps: 2500,
		MetricsAddress:          ":9310",
		Reserves:                []ReserveConfig{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
