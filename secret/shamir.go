package secret

import (
	"encoding/binary"
	"fmt"

	"github.com/canopy-network/aedpos/lib"
	"github.com/canopy-network/aedpos/lib/crypto"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/share"
)

/*
	Shamir secret sharing of in_values.
	A 32 byte hash does not fit a scalar of the ed25519 group, so it's split into two 16 byte halves that are
	shared with polynomials of the same threshold. Piece i carries the i-th share of both polynomials.
*/

const (
	halfSize   = crypto.HashSize / 2
	scalarSize = 32
	// PieceSize is the encoded size of a plaintext piece
	PieceSize = 4 + 2*scalarSize
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// Threshold() returns the number of pieces needed to recover an in_value shared among total miners
func Threshold(total, numerator, denominator int) int {
	t := total * numerator / denominator
	if t < 1 {
		t = 1
	}
	return t
}

// Split() shares a hash among total holders, any threshold of which recover it.
// The result is ordered by holder index
func Split(secret crypto.Hash, threshold, total int) ([]lib.HexBytes, lib.ErrorI) {
	if threshold < 1 || threshold > total {
		return nil, ErrInvalidThreshold(threshold, total)
	}
	stream := suite.RandomStream()
	first := share.NewPriPoly(suite, threshold, suite.Scalar().SetBytes(secret[:halfSize]), stream)
	second := share.NewPriPoly(suite, threshold, suite.Scalar().SetBytes(secret[halfSize:]), stream)
	firstShares, secondShares := first.Shares(total), second.Shares(total)
	pieces := make([]lib.HexBytes, total)
	for i := range firstShares {
		piece, err := encodePiece(firstShares[i].I, firstShares[i].V, secondShares[i].V)
		if err != nil {
			return nil, ErrSplitSecret(err)
		}
		pieces[i] = piece
	}
	return pieces, nil
}

// Recover() rebuilds a hash from at least threshold pieces.
// The caller must still check the result against the commitment it was shared for
func Recover(pieces []lib.HexBytes, threshold, total int) (h crypto.Hash, err lib.ErrorI) {
	if threshold < 1 || threshold > total {
		return h, ErrInvalidThreshold(threshold, total)
	}
	var firstShares, secondShares []*share.PriShare
	seen := lib.NewDeDuplicator[int]()
	for _, p := range pieces {
		index, first, second, e := decodePiece(p)
		if e != nil {
			return h, e
		}
		if index >= total {
			return h, ErrMalformedPiece(fmt.Sprintf("index %d out of range", index))
		}
		if seen.Found(index) {
			continue
		}
		firstShares = append(firstShares, &share.PriShare{I: index, V: first})
		secondShares = append(secondShares, &share.PriShare{I: index, V: second})
	}
	if len(firstShares) < threshold {
		return h, ErrNotEnoughPieces(len(firstShares), threshold)
	}
	firstHalf, err := recoverHalf(firstShares, threshold, total)
	if err != nil {
		return
	}
	secondHalf, err := recoverHalf(secondShares, threshold, total)
	if err != nil {
		return
	}
	copy(h[:halfSize], firstHalf)
	copy(h[halfSize:], secondHalf)
	return
}

// recoverHalf() interpolates one polynomial and checks the result fits in half a hash
func recoverHalf(shares []*share.PriShare, threshold, total int) ([]byte, lib.ErrorI) {
	s, err := share.RecoverSecret(suite, shares, threshold, total)
	if err != nil {
		return nil, ErrRecoverSecret(err)
	}
	bz, err := s.MarshalBinary()
	if err != nil {
		return nil, ErrRecoverSecret(err)
	}
	// scalars are little endian, a 16 byte value leaves the upper half zero
	for _, b := range bz[halfSize:] {
		if b != 0 {
			return nil, ErrRecoverSecret(fmt.Errorf("recovered value exceeds %d bytes", halfSize))
		}
	}
	return bz[:halfSize], nil
}

func encodePiece(index int, first, second kyber.Scalar) (lib.HexBytes, error) {
	out := make([]byte, 4, PieceSize)
	binary.BigEndian.PutUint32(out, uint32(index))
	for _, s := range []kyber.Scalar{first, second} {
		bz, err := s.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, bz...)
	}
	return out, nil
}

func decodePiece(piece []byte) (index int, first, second kyber.Scalar, err lib.ErrorI) {
	if len(piece) != PieceSize {
		return 0, nil, nil, ErrMalformedPiece(fmt.Sprintf("size %d, expected %d", len(piece), PieceSize))
	}
	index = int(binary.BigEndian.Uint32(piece[:4]))
	first, second = suite.Scalar(), suite.Scalar()
	if e := first.UnmarshalBinary(piece[4 : 4+scalarSize]); e != nil {
		return 0, nil, nil, ErrMalformedPiece(e.Error())
	}
	if e := second.UnmarshalBinary(piece[4+scalarSize:]); e != nil {
		return 0, nil, nil, ErrMalformedPiece(e.Error())
	}
	return
}
