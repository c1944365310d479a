package lib

import (
	"testing"
	"time"

	"github.com/canopy-network/aedpos/lib/crypto"
	"github.com/stretchr/testify/require"
)

func TestTransactionClaimedTime(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		name        string
		detail      string
		transaction *Transaction
		expected    time.Time
	}{
		{
			name:        "update value",
			detail:      "the mining time of the reveal",
			transaction: &Transaction{Behaviour: BehaviourUpdateValue, UpdateValue: &UpdateValueInput{ActualMiningTime: now}},
			expected:    now,
		},
		{
			name:        "tiny block",
			detail:      "the mining time of the tiny block",
			transaction: &Transaction{Behaviour: BehaviourTinyBlock, TinyBlock: &TinyBlockInput{ActualMiningTime: now}},
			expected:    now,
		},
		{
			name:        "next round",
			detail:      "the mining time of the extra block",
			transaction: &Transaction{Behaviour: BehaviourNextRound, NextRound: &NextRoundInput{ActualMiningTime: now}},
			expected:    now,
		},
		{
			name:        "no input",
			detail:      "a transaction without a payload claims the zero time",
			transaction: &Transaction{Behaviour: BehaviourNextRound},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, test.transaction.ClaimedTime())
		})
	}
}

func TestTransactionSign(t *testing.T) {
	pk, err := crypto.NewBLSPrivateKey()
	require.NoError(t, err)
	tx := &Transaction{
		Behaviour:   BehaviourTinyBlock,
		RoundNumber: 3,
		TinyBlock:   &TinyBlockInput{ActualMiningTime: time.UnixMilli(1_700_000_000_000).UTC(), ProducedBlocks: 2},
	}
	require.NoError(t, tx.Sign(pk))
	require.Equal(t, pk.PublicKey().String(), tx.Sender)
	// the sign bytes exclude the signature itself
	signBytes, e := tx.SignBytes()
	require.NoError(t, e)
	require.True(t, pk.PublicKey().VerifyBytes(signBytes, tx.Signature))
	// the signature survives the json round trip
	bz, e := MarshalJSON(tx)
	require.NoError(t, e)
	got := new(Transaction)
	require.NoError(t, UnmarshalJSON(bz, got))
	gotBytes, e := got.SignBytes()
	require.NoError(t, e)
	require.Equal(t, signBytes, gotBytes)
	require.True(t, pk.PublicKey().VerifyBytes(gotBytes, got.Signature))
	// any change to the content breaks it
	got.RoundNumber = 4
	gotBytes, e = got.SignBytes()
	require.NoError(t, e)
	require.False(t, pk.PublicKey().VerifyBytes(gotBytes, got.Signature))
}
