package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
)

// GenesisAccount is one funded account in the genesis file.
type GenesisAccount struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Genesis describes the chain's initial state: the validator schedule and
// the starting account balances. Validators order defines the round-robin
// proposer schedule.
type Genesis struct {
	Timestamp  uint64           `json:"timestamp"`
	Validators []string         `json:"validators"`
	Accounts   []GenesisAccount `json:"accounts"`
}

// LoadGenesis reads and validates a genesis file from path.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("genesis validation: %w", err)
	}
	return &g, nil
}

// Validate checks that every address is well-formed hex and at least one
// validator is configured.
func (g *Genesis) Validate() error {
	if len(g.Validators) == 0 {
		return fmt.Errorf("validators list must not be empty")
	}
	for i, v := range g.Validators {
		if err := validateHexAddress(v); err != nil {
			return fmt.Errorf("validators[%d]: %w", i, err)
		}
	}
	for i, a := range g.Accounts {
		if err := validateHexAddress(a.Address); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidatorAddresses decodes the genesis validator list into crypto
// addresses, in schedule order.
func (g *Genesis) ValidatorAddresses() ([]crypto.Address, error) {
	addrs := make([]crypto.Address, len(g.Validators))
	for i, v := range g.Validators {
		addr, err := crypto.AddressFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("validators[%d]: %w", i, err)
		}
		addrs[i] = addr
	}
	return addrs, nil
}

// GenesisBlock builds the unsigned, self-certifying genesis block (block
// #0): an all-zero parent hash, no transactions, and the first validator's
// address recorded as a convention (genesis is never signature-checked by
// AcceptBlock, since it has no parent to validate against).
func GenesisBlock(g *Genesis) (*core.Block, error) {
	addrs, err := g.ValidatorAddresses()
	if err != nil {
		return nil, err
	}
	var proposer crypto.Address
	if len(addrs) > 0 {
		proposer = addrs[0]
	}
	return core.NewBlock(crypto.ZeroHash, 0, g.Timestamp, proposer, nil), nil
}

// InitialAccounts decodes the genesis account allocations into a map
// keyed by address, ready for the first CommitBlock.
func (g *Genesis) InitialAccounts() (map[crypto.Address]core.Account, error) {
	out := make(map[crypto.Address]core.Account, len(g.Accounts))
	for _, a := range g.Accounts {
		addr, err := crypto.AddressFromHex(a.Address)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", a.Address, err)
		}
		out[addr] = core.Account{Balance: a.Balance, Nonce: a.Nonce}
	}
	return out, nil
}
