// Command generate-key outputs a fresh key for signing ledger transactions.
package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

func main() {
	flag.Parse()
	switch flag.Arg(0) {
	case "", "secp256k1":
		generateSecp256k1()
	default:
		log.Crit("Usage: generate-key [secp256k1]")
	}
}

func generateSecp256k1() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Crit("Failed to generate key", "err", err)
	}
	fmt.Printf("Signing Private Key: %x\n", crypto.FromECDSA(key))

	pub := key.Public().(*ecdsa.PublicKey)
	fmt.Printf("Signing Public Key:  %v\n", hexutil.Encode(crypto.FromECDSAPub(pub)))
	fmt.Printf("Signer Address:      %v\n", crypto.PubkeyToAddress(*pub).Hex())
}
