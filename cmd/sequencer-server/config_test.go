package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Bren2010/signup-sequencer/sequencer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

const localConfig = `
addr: ":8080"
api:
  home: "https://example.com/docs"
ledger:
  kind: local
`

func TestReadConfigDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(localConfig), 0o600))

	config, err := ReadConfig(file)
	require.NoError(t, err)
	require.Equal(t, ":8080", config.ServerAddr)
	require.Equal(t, log.LevelInfo, config.logLevel)
	require.Nil(t, config.tlsConfig)
	require.NotNil(t, config.LedgerConfig.Local)
	require.Equal(t, "", config.LedgerConfig.Local.File)

	sc := config.sequencerConfig()
	require.Equal(t, sequencer.DefaultDepth, sc.Depth)
	require.Equal(t, sequencer.DefaultInitialLeaf, sc.InitialLeaf)
	require.Equal(t, "mimc-bn254", sc.Suite.Name())
	require.Zero(t, sc.ReconcileInterval)

	_, err = ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseConfigFull(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	raw := `
addr: ":8080"
metrics-addr: ":9998"
log-level: debug
api:
  home: "https://example.com/docs"
tree:
  depth: 16
  initial-leaf: "0x0"
ledger:
  kind: ethereum
  submit-timeout: 30s
  max-attempts: 3
  backoff: 250ms
  reconcile-interval: 10m
  ethereum:
    url: "http://localhost:8545"
    contract: "0x66ee2Ea8aA9d4Bd9D40E2f5CfEe1fB9F4F1D9E2a"
    signing-key: "` + hex.EncodeToString(crypto.FromECDSA(key)) + `"
    start-block: 100
    page-size: 500
    poll-interval: 1s
    confirmations: 3
`
	config, err := parseConfig([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, ":9998", config.MetricsAddr)
	require.Equal(t, log.LevelDebug, config.logLevel)

	sc := config.sequencerConfig()
	require.Equal(t, 16, sc.Depth)
	require.True(t, sc.InitialLeaf.IsZero())
	require.Equal(t, 30*time.Second, sc.SubmitTimeout)
	require.Equal(t, 3, sc.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, sc.Backoff)
	require.Equal(t, 10*time.Minute, sc.ReconcileInterval)

	gc := config.LedgerConfig.Ethereum.gatewayConfig()
	require.Equal(t, common.HexToAddress("0x66ee2Ea8aA9d4Bd9D40E2f5CfEe1fB9F4F1D9E2a"), gc.Contract)
	require.Equal(t, uint64(100), gc.StartBlock)
	require.Equal(t, uint64(500), gc.PageSize)
	require.Equal(t, time.Second, gc.PollInterval)
	require.Equal(t, uint64(3), gc.Confirmations)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(config.LedgerConfig.Ethereum.signingKey.PublicKey))
}

func TestParseConfigErrors(t *testing.T) {
	tests := map[string]struct {
		old, new string
	}{
		"missing addr":      {`addr: ":8080"`, ``},
		"missing api":       {"api:\n  home: \"https://example.com/docs\"", ``},
		"missing ledger":    {"ledger:\n  kind: local", ``},
		"missing kind":      {"kind: local", "submit-timeout: 1s"},
		"unknown kind":      {"kind: local", "kind: bitcoin"},
		"unknown field":     {`addr: ":8080"`, "addr: \":8080\"\nport: 8080"},
		"bad log level":     {`addr: ":8080"`, "addr: \":8080\"\nlog-level: loud"},
		"bad duration":      {"kind: local", "kind: local\n  backoff: soon"},
		"negative duration": {"kind: local", "kind: local\n  submit-timeout: -1s"},
		"negative attempts": {"kind: local", "kind: local\n  max-attempts: -1"},
		"no ethereum":       {"kind: local", "kind: ethereum"},
		"no signing key":    {"kind: local", "kind: ethereum\n  ethereum:\n    url: http://localhost:8545\n    contract: \"0x66ee2Ea8aA9d4Bd9D40E2f5CfEe1fB9F4F1D9E2a\""},
		"bad contract":      {"kind: local", "kind: ethereum\n  ethereum:\n    url: http://localhost:8545\n    contract: \"0x1234\"\n    signing-key: \"00\""},
		"bad signing key":   {"kind: local", "kind: ethereum\n  ethereum:\n    url: http://localhost:8545\n    contract: \"0x66ee2Ea8aA9d4Bd9D40E2f5CfEe1fB9F4F1D9E2a\"\n    signing-key: \"00\""},
		"unknown suite":     {"kind: local", "kind: local\ntree:\n  suite: sha256"},
		"negative depth":    {"kind: local", "kind: local\ntree:\n  depth: -3"},
		"bad initial leaf":  {"kind: local", "kind: local\ntree:\n  initial-leaf: \"0xzz\""},
		"huge initial leaf": {"kind: local", "kind: local\ntree:\n  initial-leaf: \"0x" + strings.Repeat("f", 64) + "\""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			raw := strings.Replace(localConfig, tc.old, tc.new, 1)
			require.NotEqual(t, localConfig, raw)
			_, err := parseConfig([]byte(raw))
			require.Error(t, err)
		})
	}
}
