package lib

import (
	"time"

	"github.com/canopy-network/aedpos/lib/crypto"
)

/*
	A Transaction is a signed round-advancing message from a miner.
	The Behaviour a sender claims is never trusted: the engine re-derives it from state and rejects any disagreement.
	Fields marked 'hint' are informational only, the engine always computes these values itself.
*/

// Transaction is the envelope for all round-advancing messages
type Transaction struct {
	Behaviour   Behaviour         `json:"behaviour"`
	Sender      string            `json:"sender"`      // hex BLS public key of the miner
	RoundNumber uint64            `json:"roundNumber"` // the round the sender builds on
	UpdateValue *UpdateValueInput `json:"updateValue,omitempty"`
	TinyBlock   *TinyBlockInput   `json:"tinyBlock,omitempty"`
	NextRound   *NextRoundInput   `json:"nextRound,omitempty"` // used by both NextRound and NextTerm
	Signature   HexBytes          `json:"signature,omitempty"`
}

// UpdateValueInput is published in a miner's own slot: the reveal of last round's in_value and the commitment of a new one
type UpdateValueInput struct {
	OutValue                       crypto.Hash         `json:"outValue"`
	PreviousInValue                *crypto.Hash        `json:"previousInValue,omitempty"` // nil withholds the reveal
	ActualMiningTime               time.Time           `json:"actualMiningTime"`
	ImpliedIrreversibleBlockHeight uint64              `json:"impliedIrreversibleBlockHeight"`
	EncryptedPieces                map[string]HexBytes `json:"encryptedPieces,omitempty"`
	DecryptedPieces                map[string]HexBytes `json:"decryptedPieces,omitempty"`
	Signature                      *crypto.Hash        `json:"signature,omitempty"`      // hint
	SupposedOrderOfNextRound       uint32              `json:"supposedOrderOfNextRound"` // hint
	ProducedBlocks                 uint64              `json:"producedBlocks"`           // hint
}

// TinyBlockInput continues a miner's slot after its UpdateValue
type TinyBlockInput struct {
	ActualMiningTime time.Time `json:"actualMiningTime"`
	ProducedBlocks   uint64    `json:"producedBlocks"` // hint
}

// NextRoundInput carries a proposed next round
type NextRoundInput struct {
	Round            *Round    `json:"round"`
	ActualMiningTime time.Time `json:"actualMiningTime"`
}

// ClaimedTime() returns the mining time the sender claims for this transaction
func (t *Transaction) ClaimedTime() time.Time {
	switch {
	case t.UpdateValue != nil:
		return t.UpdateValue.ActualMiningTime
	case t.TinyBlock != nil:
		return t.TinyBlock.ActualMiningTime
	case t.NextRound != nil:
		return t.NextRound.ActualMiningTime
	}
	return time.Time{}
}

// SignBytes() returns the canonical bytes covered by the sender's signature
func (t *Transaction) SignBytes() ([]byte, ErrorI) {
	cpy := *t
	cpy.Signature = nil
	return MarshalJSON(cpy)
}

// Sign() signs the transaction with the sender's private key and sets the sender field
func (t *Transaction) Sign(pk crypto.PrivateKeyI) ErrorI {
	t.Sender = pk.PublicKey().String()
	bz, err := t.SignBytes()
	if err != nil {
		return err
	}
	t.Signature = pk.Sign(bz)
	return nil
}

// TxResult is the synchronous outcome of submitting a transaction
type TxResult struct {
	Accepted    bool      `json:"accepted"`
	Behaviour   Behaviour `json:"behaviour"`
	RoundNumber uint64    `json:"roundNumber"`
	Code        ErrorCode `json:"code,omitempty"`
	Category    string    `json:"category,omitempty"`
	Message     string    `json:"message,omitempty"`
}
