package main

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/ledger/ethereum"
	"github.com/Bren2010/signup-sequencer/sequencer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v2"
)

// Config specifies the file format of config files.
type Config struct {
	ServerAddr  string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics-addr"`
	LogLevel    string `yaml:"log-level"`
	logLevel    slog.Level

	TLSConfig *TLSConfig `yaml:"tls"`
	tlsConfig *tls.Config

	APIConfig    *APIConfig    `yaml:"api"`
	TreeConfig   *TreeConfig   `yaml:"tree"`
	LedgerConfig *LedgerConfig `yaml:"ledger"`
}

// TLSConfig specifies the API server's TLS config. Since this is only intended
// for use with Cloudflare OriginCA, TLS on the server also starts requiring a
// valid client certificate.
type TLSConfig struct {
	Cert     string `yaml:"cert"`
	Key      string `yaml:"key"`
	ClientCA string `yaml:"client-ca"` // CA for validating client certificates.
}

type APIConfig struct {
	HomeRedirect string `yaml:"home"`
}

// TreeConfig describes the accumulator. It must match the ledger contract.
type TreeConfig struct {
	Suite       string `yaml:"suite"`
	Depth       int    `yaml:"depth"`
	InitialLeaf string `yaml:"initial-leaf"`

	suite       suites.CipherSuite
	initialLeaf suites.Hash
}

type LedgerConfig struct {
	Kind              string `yaml:"kind"` // "ethereum" or "local".
	SubmitTimeout     string `yaml:"submit-timeout"`
	MaxAttempts       int    `yaml:"max-attempts"`
	Backoff           string `yaml:"backoff"`
	ReconcileInterval string `yaml:"reconcile-interval"`

	submitTimeout, backoff, reconcileInterval time.Duration

	Ethereum *EthereumConfig `yaml:"ethereum"`
	Local    *LocalConfig    `yaml:"local"`
}

type EthereumConfig struct {
	URL           string `yaml:"url"`
	Contract      string `yaml:"contract"`
	SigningKey    string `yaml:"signing-key"` // Hex-encoded secp256k1 private key.
	StartBlock    uint64 `yaml:"start-block"`
	PageSize      uint64 `yaml:"page-size"`
	GasLimit      uint64 `yaml:"gas-limit"`
	PollInterval  string `yaml:"poll-interval"`
	Confirmations uint64 `yaml:"confirmations"` // Blocks, counting the one with the transaction.

	contract     common.Address
	signingKey   *ecdsa.PrivateKey
	pollInterval time.Duration
}

type LocalConfig struct {
	File string `yaml:"file"` // Empty for an in-memory ledger.
}

// sequencerConfig returns the sequencer parameters described by the config.
func (c *Config) sequencerConfig() sequencer.Config {
	return sequencer.Config{
		Suite:       c.TreeConfig.suite,
		Depth:       c.TreeConfig.Depth,
		InitialLeaf: c.TreeConfig.initialLeaf,

		SubmitTimeout:     c.LedgerConfig.submitTimeout,
		MaxAttempts:       c.LedgerConfig.MaxAttempts,
		Backoff:           c.LedgerConfig.backoff,
		ReconcileInterval: c.LedgerConfig.reconcileInterval,
	}
}

func (c *EthereumConfig) gatewayConfig() ethereum.Config {
	return ethereum.Config{
		URL:           c.URL,
		Contract:      c.contract,
		StartBlock:    c.StartBlock,
		PageSize:      c.PageSize,
		GasLimit:      c.GasLimit,
		PollInterval:  c.pollInterval,
		Confirmations: c.Confirmations,
	}
}

func parseLevel(lvl string) (slog.Level, error) {
	switch strings.ToUpper(lvl) {
	case "TRACE":
		return log.LevelTrace, nil
	case "DEBUG":
		return log.LevelDebug, nil
	case "", "INFO":
		return log.LevelInfo, nil
	case "WARN", "WARNING":
		return log.LevelWarn, nil
	case "ERROR":
		return log.LevelError, nil
	case "CRIT", "CRITICAL":
		return log.LevelCrit, nil
	default:
		return 0, fmt.Errorf("invalid level: %s", lvl)
	}
}

// parseDuration parses an optional duration field.
func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %v: %v", name, err)
	} else if d < 0 {
		return 0, fmt.Errorf("%v must not be negative", name)
	}
	return d, nil
}

func ReadConfig(filename string) (*Config, error) {
	// Read from file and parse.
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return parseConfig(raw)
}

func parseConfig(raw []byte) (*Config, error) {
	var parsed Config
	if err := yaml.UnmarshalStrict(raw, &parsed); err != nil {
		return nil, err
	}

	// Check that all required fields are populated.
	if parsed.ServerAddr == "" {
		return nil, fmt.Errorf("field not provided: addr")
	} else if parsed.APIConfig == nil {
		return nil, fmt.Errorf("field not provided: api")
	} else if parsed.APIConfig.HomeRedirect == "" {
		return nil, fmt.Errorf("field not provided: api.home")
	} else if parsed.LedgerConfig == nil {
		return nil, fmt.Errorf("field not provided: ledger")
	}
	if parsed.TreeConfig == nil {
		parsed.TreeConfig = &TreeConfig{}
	}

	lvl, err := parseLevel(parsed.LogLevel)
	if err != nil {
		return nil, err
	}
	parsed.logLevel = lvl

	// Parse TLS config if necessary.
	if parsed.TLSConfig != nil {
		cert, err := tls.LoadX509KeyPair(parsed.TLSConfig.Cert, parsed.TLSConfig.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate/key: %v", err)
		}

		certPool := x509.NewCertPool()
		caCerts, err := os.ReadFile(parsed.TLSConfig.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client CA: %v", err)
		} else if ok := certPool.AppendCertsFromPEM(caCerts); !ok {
			return nil, fmt.Errorf("no client CA certificates successfully parsed from file")
		}

		parsed.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    certPool,
		}
	}

	if err := parsed.TreeConfig.parse(); err != nil {
		return nil, err
	} else if err := parsed.LedgerConfig.parse(); err != nil {
		return nil, err
	}

	return &parsed, nil
}

func (tc *TreeConfig) parse() error {
	tc.suite = suites.ByName(tc.Suite)
	if tc.suite == nil {
		return fmt.Errorf("unknown tree.suite: %v", tc.Suite)
	}
	if tc.Depth == 0 {
		tc.Depth = sequencer.DefaultDepth
	} else if tc.Depth < 0 {
		return fmt.Errorf("tree.depth must be positive")
	}
	if tc.InitialLeaf == "" {
		tc.initialLeaf = sequencer.DefaultInitialLeaf
	} else {
		leaf, err := suites.ParseHash(tc.InitialLeaf)
		if err != nil {
			return fmt.Errorf("failed to parse tree.initial-leaf: %v", err)
		}
		tc.initialLeaf = leaf
	}
	if err := tc.suite.Validate(tc.initialLeaf); err != nil {
		return fmt.Errorf("tree.initial-leaf is not a valid field element: %v", err)
	}
	return nil
}

func (lc *LedgerConfig) parse() error {
	var err error
	if lc.submitTimeout, err = parseDuration("ledger.submit-timeout", lc.SubmitTimeout); err != nil {
		return err
	} else if lc.backoff, err = parseDuration("ledger.backoff", lc.Backoff); err != nil {
		return err
	} else if lc.reconcileInterval, err = parseDuration("ledger.reconcile-interval", lc.ReconcileInterval); err != nil {
		return err
	} else if lc.MaxAttempts < 0 {
		return fmt.Errorf("ledger.max-attempts must not be negative")
	}

	switch lc.Kind {
	case "ethereum":
		ec := lc.Ethereum
		if ec == nil {
			return fmt.Errorf("field not provided: ledger.ethereum")
		} else if ec.URL == "" {
			return fmt.Errorf("field not provided: ledger.ethereum.url")
		} else if ec.Contract == "" {
			return fmt.Errorf("field not provided: ledger.ethereum.contract")
		} else if ec.SigningKey == "" {
			return fmt.Errorf("field not provided: ledger.ethereum.signing-key")
		}
		if !common.IsHexAddress(ec.Contract) {
			return fmt.Errorf("ledger.ethereum.contract is not an address: %v", ec.Contract)
		}
		ec.contract = common.HexToAddress(ec.Contract)
		if ec.signingKey, err = ethereum.ParseKey(ec.SigningKey); err != nil {
			return err
		} else if ec.pollInterval, err = parseDuration("ledger.ethereum.poll-interval", ec.PollInterval); err != nil {
			return err
		}

	case "local":
		if lc.Local == nil {
			lc.Local = &LocalConfig{}
		}

	case "":
		return fmt.Errorf("field not provided: ledger.kind")
	default:
		return fmt.Errorf("unknown ledger.kind: %v", lc.Kind)
	}

	return nil
}
