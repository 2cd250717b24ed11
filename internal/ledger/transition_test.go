package ledger

import (
	"testing"

	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestApplyBlockTransfersBalance(t *testing.T) {
	a := types.FillAddress(1)
	b := types.FillAddress(2)
	key := mustKey(t)

	parent := State{a: {Nonce: 0, Balance: 10_000}}

	raw := tx.Transaction{Sender: a, Nonce: 1, Receiver: b, Value: 100}
	signed := tx.Sign(raw, key)
	blk := block.NewBlock(&block.Header{}, []*tx.SignedTransaction{signed})

	next, ok := ApplyBlock(parent, blk)
	if !ok {
		t.Fatalf("expected state transition to succeed")
	}
	if got := next[a]; got != (Account{Nonce: 1, Balance: 9_900}) {
		t.Errorf("sender account = %+v, want {1 9900}", got)
	}
	if got := next[b]; got != (Account{Nonce: 0, Balance: 100}) {
		t.Errorf("receiver account = %+v, want {0 100}", got)
	}
}

func TestApplyBlockAbortsOnOverdraft(t *testing.T) {
	a := types.FillAddress(1)
	b := types.FillAddress(2)
	key := mustKey(t)

	parent := State{a: {Nonce: 0, Balance: 50}}
	raw := tx.Transaction{Sender: a, Nonce: 1, Receiver: b, Value: 100}
	signed := tx.Sign(raw, key)
	blk := block.NewBlock(&block.Header{}, []*tx.SignedTransaction{signed})

	next, ok := ApplyBlock(parent, blk)
	if ok {
		t.Fatalf("expected state transition to fail on overdraft")
	}
	if len(next) != len(parent) {
		t.Errorf("expected untouched parent state returned on failure")
	}
}

func TestApplyBlockIsPureFunctionOfParentAndContent(t *testing.T) {
	a := types.FillAddress(1)
	b := types.FillAddress(2)
	key := mustKey(t)

	parent := State{a: {Nonce: 0, Balance: 10_000}}
	raw := tx.Transaction{Sender: a, Nonce: 1, Receiver: b, Value: 100}
	signed := tx.Sign(raw, key)
	blk := block.NewBlock(&block.Header{}, []*tx.SignedTransaction{signed})

	next1, ok1 := ApplyBlock(parent, blk)
	next2, ok2 := ApplyBlock(parent, blk)
	if ok1 != ok2 || next1[a] != next2[a] || next1[b] != next2[b] {
		t.Errorf("ApplyBlock is not deterministic given the same inputs")
	}
}

func TestValidateTxRejectsWrongNonce(t *testing.T) {
	a := types.FillAddress(1)
	b := types.FillAddress(2)
	key := mustKey(t)

	state := State{a: {Nonce: 0, Balance: 10_000}}
	raw := tx.Transaction{Sender: a, Nonce: 5, Receiver: b, Value: 100}
	signed := tx.Sign(raw, key)

	if err := ValidateTx(state, signed); err != ErrWrongNonce {
		t.Errorf("ValidateTx() error = %v, want ErrWrongNonce", err)
	}
}

func TestValidateTxRejectsBadSignature(t *testing.T) {
	a := types.FillAddress(1)
	b := types.FillAddress(2)
	key := mustKey(t)
	other := mustKey(t)

	state := State{a: {Nonce: 0, Balance: 10_000}}
	raw := tx.Transaction{Sender: a, Nonce: 1, Receiver: b, Value: 100}
	signed := tx.Sign(raw, key)
	signed.PublicKey = other.PublicKey() // swap in an unrelated key

	if err := ValidateTx(state, signed); err != ErrBadSignature {
		t.Errorf("ValidateTx() error = %v, want ErrBadSignature", err)
	}
}
