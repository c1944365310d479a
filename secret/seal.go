package secret

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/canopy-network/aedpos/lib"
	"golang.org/x/crypto/nacl/box"
)

// MaxSealedPieceSize is the largest encrypted piece accepted in a transaction
const MaxSealedPieceSize = PieceSize + box.AnonymousOverhead

// BoxKey is the X25519 key pair a miner uses to receive pieces of other miners' in_values
type BoxKey struct {
	Public  *[32]byte
	Private *[32]byte
}

// boxKeyJSON is the on-disk form of a BoxKey
type boxKeyJSON struct {
	Public  lib.HexBytes `json:"public"`
	Private lib.HexBytes `json:"private"`
}

// NewBoxKey() generates a random box key pair
func NewBoxKey() (*BoxKey, lib.ErrorI) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, ErrBoxKey(err)
	}
	return &BoxKey{Public: public, Private: private}, nil
}

// PublicString() returns the hex encoding of the public half, the form published in the genesis file
func (k *BoxKey) PublicString() string { return hex.EncodeToString(k.Public[:]) }

// Open() decrypts a piece sealed to this key
func (k *BoxKey) Open(sealed []byte) ([]byte, lib.ErrorI) {
	if len(sealed) > MaxSealedPieceSize {
		return nil, ErrMalformedPiece(fmt.Sprintf("sealed size %d above %d", len(sealed), MaxSealedPieceSize))
	}
	plain, ok := box.OpenAnonymous(nil, sealed, k.Public, k.Private)
	if !ok {
		return nil, ErrOpenPiece()
	}
	return plain, nil
}

// Seal() encrypts a piece to the holder of the recipient public key
func Seal(piece []byte, recipient *[32]byte) (lib.HexBytes, lib.ErrorI) {
	sealed, err := box.SealAnonymous(nil, piece, recipient, rand.Reader)
	if err != nil {
		return nil, ErrSealPiece(err)
	}
	return sealed, nil
}

// BoxPublicKeyFromString() decodes a hex box public key
func BoxPublicKeyFromString(s string) (*[32]byte, lib.ErrorI) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrBoxKey(err)
	}
	if len(bz) != 32 {
		return nil, ErrBoxKey(fmt.Errorf("size %d, expected 32", len(bz)))
	}
	out := new([32]byte)
	copy(out[:], bz)
	return out, nil
}

// SaveBoxKey() writes the key pair to a json file in the data directory
func SaveBoxKey(k *BoxKey, dataDirPath string) lib.ErrorI {
	return lib.SaveJSONToFile(boxKeyJSON{Public: k.Public[:], Private: k.Private[:]}, dataDirPath, lib.BoxKeyPath)
}

// LoadBoxKey() reads the key pair from the data directory
func LoadBoxKey(dataDirPath string) (*BoxKey, lib.ErrorI) {
	j := new(boxKeyJSON)
	if err := lib.NewJSONFromFile(j, dataDirPath, lib.BoxKeyPath); err != nil {
		return nil, err
	}
	if len(j.Public) != 32 || len(j.Private) != 32 {
		return nil, ErrBoxKey(fmt.Errorf("wrong key size"))
	}
	k := &BoxKey{Public: new([32]byte), Private: new([32]byte)}
	copy(k.Public[:], j.Public)
	copy(k.Private[:], j.Private)
	return k, nil
}
