package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadServe("", nil)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, 2*time.Minute, cfg.ReceiptTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "graduation.yaml")
	require.NoError(t, os.WriteFile(file, []byte("eth-price: 1500\nsample-batch: 10\nadmins:\n  - \"0x00000000000000000000000000000000000000aa\"\n"), 0o644))
	t.Setenv("GRADUATION_SAMPLE_BATCH", "20")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64("eth-price", 0, "")
	require.NoError(t, flags.Parse([]string{"--eth-price=2500"}))

	cfg, err := LoadSample(file, flags)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, cfg.EthPrice)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000aa"}, cfg.Admins)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GRADUATION_ETH_PRICE=3100\nGRADUATION_ADMINS=0x01,0x02\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("GRADUATION_ETH_PRICE")
		os.Unsetenv("GRADUATION_ADMINS")
	})

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 3100.0, cfg.EthPrice)
	assert.Equal(t, []string{"0x01", "0x02"}, cfg.Admins)
}

func TestValidate(t *testing.T) {
	base := Config{Backend: BackendMemory, EthPrice: 2000}
	assert.NoError(t, base.Validate())

	noPrice := base
	noPrice.EthPrice = 0
	assert.Error(t, noPrice.Validate())

	chain := base
	chain.Backend = BackendChain
	assert.ErrorContains(t, chain.Validate(), "rpc url")

	chain.RPCURL = "http://localhost:8545"
	chain.Factory = "0x00000000000000000000000000000000000000f1"
	chain.Engine = "0x00000000000000000000000000000000000000e1"
	chain.Graduation = "0x0000000000000000000000000000000000000091"
	assert.NoError(t, chain.Validate())

	chain.Engine = "not-an-address"
	assert.ErrorContains(t, chain.Validate(), "invalid engine address")

	unknown := base
	unknown.Backend = "sqlite"
	assert.Error(t, unknown.Validate())

	badAdmin := base
	badAdmin.Admins = []string{"nope"}
	assert.Error(t, badAdmin.Validate())

	serve := ServeConfig{SampleConfig: SampleConfig{Config: base}, Listen: ":0", RateLimit: 1, RateBurst: 1}
	assert.NoError(t, serve.Validate())
	serve.SamplerEnabled = true
	assert.ErrorContains(t, serve.Validate(), "sample-batch")
}
