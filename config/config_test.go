package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lendpool/crypto"
)

func testAddress(t *testing.T, fill byte) string {
	t.Helper()
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(crypto.PoolPrefix, b).String()
}

func TestLoadParsesReserves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	custody := testAddress(t, 0x01)
	asset := testAddress(t, 0x02)
	contents := fmt.Sprintf(`DataDir = "./data"
CustodyAddress = "%s"
MaxStableLoanPercentBps = 3000

[[reserve]]
Asset = "%s"
Active = true
BorrowingEnabled = true
StableBorrowingEnabled = true
LTVBps = 7500
LiquidationThresholdBps = 8000
LiquidationBonusBps = 500
ReserveFactorBps = 1000
BaseRate = 0.02
Slope1 = 0.08
Slope2 = 0.75
OptimalUtilisation = 0.8
StableOffset = 0.04
`, custody, asset)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, custody, cfg.CustodyAddress)
	require.Equal(t, uint64(3000), cfg.MaxStableLoanPercentBps)
	require.Len(t, cfg.Reserves, 1)
	reserve := cfg.Reserves[0]
	require.Equal(t, asset, reserve.Asset)
	require.True(t, reserve.Active)
	require.True(t, reserve.StableBorrowingEnabled)
	require.Equal(t, uint64(7500), reserve.LTVBps)
	require.Equal(t, uint64(8000), reserve.LiquidationThresholdBps)
	require.InDelta(t, 0.8, reserve.OptimalUtilisation, 1e-9)
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.NotEmpty(t, cfg.CustodyAddress)
	require.Equal(t, uint64(2500), cfg.MaxStableLoanPercentBps)

	decoded, err := crypto.DecodeAddress(cfg.CustodyAddress)
	require.NoError(t, err)
	require.False(t, decoded.IsZero())
}

func TestValidateRejectsBadBounds(t *testing.T) {
	custody := testAddress(t, 0x01)
	asset := testAddress(t, 0x02)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing custody", func(c *Config) { c.CustodyAddress = "" }},
		{"bad custody", func(c *Config) { c.CustodyAddress = "not-bech32" }},
		{"stable share too large", func(c *Config) { c.MaxStableLoanPercentBps = 10_001 }},
		{"ltv above threshold", func(c *Config) { c.Reserves[0].LTVBps = 9000 }},
		{"threshold above 100%", func(c *Config) { c.Reserves[0].LiquidationThresholdBps = 10_500 }},
		{"utilisation out of range", func(c *Config) { c.Reserves[0].OptimalUtilisation = 1.5 }},
		{"duplicate asset", func(c *Config) { c.Reserves = append(c.Reserves, c.Reserves[0]) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				CustodyAddress:          custody,
				MaxStableLoanPercentBps: 2500,
				Reserves: []ReserveConfig{{
					Asset:                   asset,
					Active:                  true,
					LTVBps:                  7500,
					LiquidationThresholdBps: 8000,
					OptimalUtilisation:      0.8,
				}},
			}
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
