package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/canopy-network/aedpos/consensus"
	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/canopy-network/aedpos/secret"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "create the miner and box keys of the data directory if missing, then print the public keys",
	Run: func(cmd *cobra.Command, args []string) {
		writeToConsole(initializeKeys(config.DataDirPath))
	},
}

// initializeKeys() loads or creates the miner BLS key and the secret sharing box key
func initializeKeys(dataDirPath string) (*consensus.GenesisMiner, error) {
	keyPath := filepath.Join(dataDirPath, lib.MinerKeyPath)
	if _, err := os.Stat(keyPath); errors.Is(err, os.ErrNotExist) {
		l.Infof("Creating %s file", lib.MinerKeyPath)
		key, err := crypto.NewBLSPrivateKey()
		if err != nil {
			return nil, err
		}
		if err = crypto.PrivateKeyToFile(key, keyPath); err != nil {
			return nil, err
		}
	}
	key, err := crypto.NewPrivateKeyFromFile(keyPath)
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(filepath.Join(dataDirPath, lib.BoxKeyPath)); errors.Is(err, os.ErrNotExist) {
		l.Infof("Creating %s file", lib.BoxKeyPath)
		box, e := secret.NewBoxKey()
		if e != nil {
			return nil, e
		}
		if e = secret.SaveBoxKey(box, dataDirPath); e != nil {
			return nil, e
		}
	}
	box, e := secret.LoadBoxKey(dataDirPath)
	if e != nil {
		return nil, e
	}
	return &consensus.GenesisMiner{Pubkey: key.PublicKey().String(), BoxKey: box.PublicString()}, nil
}
