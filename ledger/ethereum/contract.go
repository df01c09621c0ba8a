package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// semaphoreABI is the subset of the Semaphore contract's ABI used by the
// sequencer.
const semaphoreABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "_identityCommitment", "type": "uint256"}],
		"name": "insertIdentity",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "uint256", "name": "leaf", "type": "uint256"},
			{"indexed": true, "internalType": "uint256", "name": "leafIndex", "type": "uint256"}
		],
		"name": "LeafInsertion",
		"type": "event"
	}
]`

const (
	insertMethod   = "insertIdentity"
	insertionEvent = "LeafInsertion"
)

// contract wraps the parsed ABI.
type contract struct {
	abi abi.ABI
}

func parseContract() (*contract, error) {
	parsed, err := abi.JSON(strings.NewReader(semaphoreABI))
	if err != nil {
		return nil, err
	}
	return &contract{abi: parsed}, nil
}

func (c *contract) eventID() common.Hash {
	return c.abi.Events[insertionEvent].ID
}

// packInsert returns the calldata of an insertIdentity call.
func (c *contract) packInsert(commitment suites.Hash) ([]byte, error) {
	return c.abi.Pack(insertMethod, commitment.Big())
}

// unpackInsert is the inverse of packInsert.
func (c *contract) unpackInsert(data []byte) (suites.Hash, error) {
	method, ok := c.abi.Methods[insertMethod]
	if !ok || len(data) < 4 {
		return suites.Hash{}, fmt.Errorf("calldata too short")
	} else if string(data[:4]) != string(method.ID) {
		return suites.Hash{}, fmt.Errorf("calldata is not an %v call", insertMethod)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return suites.Hash{}, err
	} else if len(args) != 1 {
		return suites.Hash{}, fmt.Errorf("unexpected number of arguments: %v", len(args))
	}
	x, ok := args[0].(*big.Int)
	if !ok {
		return suites.Hash{}, fmt.Errorf("unexpected argument type %T", args[0])
	}
	return suites.HashFromBig(x)
}

// decodeInsertion parses a LeafInsertion event. Both fields are indexed, so
// they are carried in the log's topics rather than its data.
func (c *contract) decodeInsertion(lg *types.Log) (ledger.Insertion, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != c.eventID() {
		return ledger.Insertion{}, fmt.Errorf("log %v of tx %v is not a %v event", lg.Index, lg.TxHash, insertionEvent)
	}
	index := new(big.Int).SetBytes(lg.Topics[2][:])
	if !index.IsUint64() {
		return ledger.Insertion{}, fmt.Errorf("leaf index %v is out of range", index)
	}
	return ledger.Insertion{
		Index:      index.Uint64(),
		Commitment: suites.Hash(lg.Topics[1]),
	}, nil
}
