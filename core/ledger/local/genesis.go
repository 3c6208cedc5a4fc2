package local

import (
	"os"

	"github.com/bitpond/appkit/core/store"
	"github.com/bitpond/appkit/core/txn"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Genesis is the initial state of a ledger.
//
// The YAML form is:
//
//	genesis_id: appkit-dev
//	balances:
//	  <address>: 1000000
type Genesis struct {
	GenesisID string            `yaml:"genesis_id"`
	Balances  map[string]uint64 `yaml:"balances"`
}

// LoadGenesis reads the genesis from the YAML file at the path.
func LoadGenesis(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, xerrors.Errorf("failed to read genesis: %v", err)
	}

	var genesis Genesis
	err = yaml.UnmarshalStrict(data, &genesis)
	if err != nil {
		return Genesis{}, xerrors.Errorf("failed to decode genesis: %v", err)
	}

	return genesis, nil
}

// apply credits the initial balances. It returns false when the state already
// has a genesis.
func (g Genesis) apply(snap store.Snapshot) (bool, error) {
	done, err := snap.Get(keyGenesis)
	if err != nil {
		return false, xerrors.Errorf("failed to read genesis: %v", err)
	}

	if done != nil {
		return false, nil
	}

	for text, amount := range g.Balances {
		addr, err := txn.ParseAddress(text)
		if err != nil {
			return false, xerrors.Errorf("genesis: %v", err)
		}

		res, err := credit(snap, addr, amount)
		if err != nil {
			return false, xerrors.Errorf("genesis: %v", err)
		}

		if !res.accepted {
			return false, xerrors.Errorf("genesis: %s", res.reason)
		}
	}

	err = snap.Set(keyGenesis, []byte(g.GenesisID))
	if err != nil {
		return false, xerrors.Errorf("failed to write genesis: %v", err)
	}

	return true, nil
}
