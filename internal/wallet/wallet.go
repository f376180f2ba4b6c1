// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet holds one identity participating in the sale: the deployer, a buyer,
// a founder or a cranker. Only the public key ever reaches the engine; the
// private key stands in for the platform's transaction signature.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet creates a wallet from a base58-encoded private key.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// Generate creates a fresh random wallet.
func Generate() *Wallet {
	acc := solana.NewWallet()
	return &Wallet{
		PrivateKey: acc.PrivateKey,
		PublicKey:  acc.PublicKey(),
	}
}

// LoadWallets reads wallets from a CSV file with columns: [Name, PrivateKeyBase58].
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		w, err := NewWallet(record[1])
		if err != nil {
			continue
		}
		wallets[record[0]] = w
	}
	return wallets, nil
}

// String returns the wallet's public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
