// Package ethereum implements a ledger gateway for a Semaphore membership
// contract deployed on an Ethereum-compatible chain.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/ledger"
	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultPageSize     = 10000
	defaultPollInterval = 2 * time.Second
)

// Client is the subset of *ethclient.Client used by the gateway.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error)

	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg goethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Client = (*ethclient.Client)(nil)

type Config struct {
	URL      string
	Contract common.Address

	// StartBlock is the block the contract was deployed in. History is read
	// from there in windows of PageSize blocks.
	StartBlock uint64
	PageSize   uint64
	// GasLimit overrides gas estimation when non-zero.
	GasLimit     uint64
	PollInterval time.Duration
	// Confirmations is how many blocks, counting the one that includes the
	// transaction, must be mined before an insertion is confirmed. Zero and
	// one both accept the first receipt.
	Confirmations uint64
}

// Gateway is a ledger.Gateway that reads LeafInsertion events and submits
// insertIdentity transactions.
type Gateway struct {
	client   Client
	cfg      Config
	contract *contract

	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	mu       sync.Mutex
	inflight map[uint64]*types.Transaction
}

var _ ledger.Gateway = (*Gateway)(nil)

// ParseKey parses a hex-encoded secp256k1 private key.
func ParseKey(raw string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}

// Dial connects to the node at cfg.URL and returns a gateway that signs with
// key.
func Dial(ctx context.Context, cfg Config, key *ecdsa.PrivateKey) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %v: %w", cfg.URL, err)
	}
	return New(ctx, client, cfg, key)
}

func New(ctx context.Context, client Client, cfg Config, key *ecdsa.PrivateKey) (*Gateway, error) {
	if key == nil {
		return nil, errors.New("no signing key provided")
	} else if cfg.Contract == (common.Address{}) {
		return nil, errors.New("no contract address provided")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}

	c, err := parseContract()
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	log.Info("Connected to ledger", "chain", chainID, "contract", cfg.Contract, "signer", from)

	return &Gateway{
		client:   client,
		cfg:      cfg,
		contract: c,

		key:     key,
		from:    from,
		chainID: chainID,

		inflight: make(map[uint64]*types.Transaction),
	}, nil
}

// Signer returns the address transactions are sent from.
func (g *Gateway) Signer() common.Address { return g.from }

// classify wraps err as a ledger error. Errors returned by the node itself are
// permanent: the request reached the chain and was refused. Anything else is
// assumed to be a transport failure.
func classify(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return ledger.Permanent(op, err)
	}
	return ledger.Transient(op, err)
}

func (g *Gateway) PastInsertions(ctx context.Context) ([]ledger.Insertion, error) {
	latest, err := g.client.BlockNumber(ctx)
	if err != nil {
		return nil, classify("history", err)
	}

	out := make([]ledger.Insertion, 0)
	for from := g.cfg.StartBlock; from <= latest; from += g.cfg.PageSize {
		to := from + g.cfg.PageSize - 1
		if to > latest {
			to = latest
		}
		logs, err := g.client.FilterLogs(ctx, goethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{g.cfg.Contract},
			Topics:    [][]common.Hash{{g.contract.eventID()}},
		})
		if err != nil {
			return nil, classify("history", err)
		}
		for i := range logs {
			if logs[i].Removed {
				continue
			}
			ins, err := g.contract.decodeInsertion(&logs[i])
			if err != nil {
				return nil, ledger.Permanent("history", err)
			}
			out = append(out, ins)
		}
		log.Debug("Read ledger history", "from", from, "to", to, "events", len(logs))
	}

	return out, nil
}

// buildTx returns a signed insertIdentity transaction for commitment.
func (g *Gateway) buildTx(ctx context.Context, commitment suites.Hash) (*types.Transaction, error) {
	data, err := g.contract.packInsert(commitment)
	if err != nil {
		return nil, ledger.Permanent("submit", err)
	}

	nonce, err := g.client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, classify("submit", err)
	}
	tip, err := g.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, classify("submit", err)
	}
	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, classify("submit", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	gas := g.cfg.GasLimit
	if gas == 0 {
		gas, err = g.client.EstimateGas(ctx, goethereum.CallMsg{
			From: g.from,
			To:   &g.cfg.Contract,
			Data: data,
		})
		if err != nil {
			return nil, classify("submit", err)
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &g.cfg.Contract,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, ledger.Permanent("submit", err)
	}
	return signed, nil
}

// SubmitInsertion sends an insertIdentity transaction and waits for it to be
// mined. Retrying a submission for the same index re-sends the transaction
// that was already signed for it rather than building a new one, so a lost
// response never results in a second insertion.
func (g *Gateway) SubmitInsertion(ctx context.Context, index uint64, commitment suites.Hash) (*ledger.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.inflight[index]
	if ok {
		if prev, err := g.contract.unpackInsert(tx.Data()); err != nil || prev != commitment {
			ok = false
		}
	}
	if !ok {
		var err error
		tx, err = g.buildTx(ctx, commitment)
		if err != nil {
			return nil, err
		}
		g.inflight[index] = tx
	}

	if err := g.client.SendTransaction(ctx, tx); err != nil && !isAlreadyKnown(err) {
		err = classify("submit", err)
		if !ledger.IsTransient(err) {
			delete(g.inflight, index)
		}
		return nil, err
	}
	log.Debug("Sent insertion transaction", "index", index, "tx", tx.Hash(), "nonce", tx.Nonce())

	receipt, err := g.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	} else if receipt, err = g.waitConfirmed(ctx, receipt); err != nil {
		return nil, err
	}
	delete(g.inflight, index)

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ledger.Permanent("submit", fmt.Errorf("transaction %v reverted", tx.Hash()))
	}
	for _, lg := range receipt.Logs {
		if lg.Address != g.cfg.Contract || len(lg.Topics) == 0 || lg.Topics[0] != g.contract.eventID() {
			continue
		}
		ins, err := g.contract.decodeInsertion(lg)
		if err != nil {
			return nil, ledger.Permanent("submit", err)
		} else if ins.Index != index {
			return nil, ledger.Permanent("submit", fmt.Errorf("contract assigned index %v, expected %v", ins.Index, index))
		} else if ins.Commitment != commitment {
			return nil, ledger.Permanent("submit", fmt.Errorf("contract recorded commitment %v, expected %v", ins.Commitment, commitment))
		}

		conf := &ledger.Confirmation{Index: index, TxHash: tx.Hash().Hex()}
		if receipt.BlockNumber != nil {
			conf.Block = receipt.BlockNumber.Uint64()
		}
		return conf, nil
	}
	return nil, ledger.Permanent("submit", fmt.Errorf("transaction %v emitted no %v event", tx.Hash(), insertionEvent))
}

// waitMined polls for the receipt of the given transaction until it is
// available or ctx expires.
func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		} else if !errors.Is(err, goethereum.NotFound) {
			log.Trace("Receipt retrieval failed", "tx", hash, "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ledger.Transient("confirm", ctx.Err())
		case <-ticker.C:
		}
	}
}

// waitConfirmed waits until the block holding receipt is buried under the
// configured number of confirmations, and returns the receipt as seen at
// that point. If the transaction was reorganized out in the meantime, a
// transient error is returned so that the submission is retried with the
// same transaction.
func (g *Gateway) waitConfirmed(ctx context.Context, receipt *types.Receipt) (*types.Receipt, error) {
	if g.cfg.Confirmations <= 1 || receipt.BlockNumber == nil {
		return receipt, nil
	}
	target := receipt.BlockNumber.Uint64() + g.cfg.Confirmations - 1

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		head, err := g.client.BlockNumber(ctx)
		if err != nil {
			log.Trace("Block number retrieval failed", "err", err)
		} else if head >= target {
			latest, err := g.client.TransactionReceipt(ctx, receipt.TxHash)
			if errors.Is(err, goethereum.NotFound) || (err == nil && latest.BlockHash != receipt.BlockHash) {
				return nil, ledger.Transient("confirm", fmt.Errorf("transaction %v was reorganized out of block %v", receipt.TxHash, receipt.BlockNumber))
			} else if err == nil {
				return latest, nil
			}
			log.Trace("Receipt retrieval failed", "tx", receipt.TxHash, "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ledger.Transient("confirm", ctx.Err())
		case <-ticker.C:
		}
	}
}

func isAlreadyKnown(err error) bool {
	return strings.Contains(err.Error(), "already known")
}
