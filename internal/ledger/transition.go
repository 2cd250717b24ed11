package ledger

import (
	"errors"

	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/tx"
)

// Per-transaction validity errors, used by the mempool and the miner's
// pre-mining scan to decide whether a pending transaction still applies
// against the current tip state.
var (
	ErrBadSignature    = errors.New("transaction signature does not verify")
	ErrUnknownSender   = errors.New("sender account does not exist")
	ErrInsufficientBal = errors.New("sender balance does not exceed value")
	ErrWrongNonce      = errors.New("transaction nonce does not follow account nonce")
)

// ApplyBlock computes the candidate state after processing blk's
// transactions in order against parent. If any transaction would
// overdraw its sender, the whole block's state update is abandoned and
// ok is false — callers must NOT record a state entry for this block in
// that case, though the block itself may still be committed to the
// chain (see the blockchain package and the design notes on why a
// state-less committed block is possible here).
func ApplyBlock(parent State, blk *block.Block) (next State, ok bool) {
	next = parent.Clone()

	for _, signed := range blk.Content.Transactions {
		raw := signed.Raw

		if !next.Has(raw.Receiver) {
			next[raw.Receiver] = Account{}
		}

		sender := next[raw.Sender]
		if sender.Balance < raw.Value {
			return parent, false
		}

		receiver := next[raw.Receiver]
		next[raw.Sender] = Account{Nonce: sender.Nonce + 1, Balance: sender.Balance - raw.Value}
		next[raw.Receiver] = Account{Nonce: receiver.Nonce, Balance: receiver.Balance + raw.Value}
	}

	return next, true
}

// ValidateTx checks whether a signed transaction is currently admissible
// against state: the signature verifies, the sender account exists, its
// balance strictly exceeds the transfer value, and its stored nonce plus
// one equals the transaction's nonce. This is the check used by the
// mempool on receipt and by the miner's pre-mining scan — note the
// strict balance inequality here differs from ApplyBlock's non-strict
// check, matching the two independent rules this core defines.
func ValidateTx(state State, signed *tx.SignedTransaction) error {
	if !signed.VerifySignature() {
		return ErrBadSignature
	}
	acct, exists := state[signed.Raw.Sender]
	if !exists {
		return ErrUnknownSender
	}
	if acct.Balance <= signed.Raw.Value {
		return ErrInsufficientBal
	}
	if acct.Nonce+1 != signed.Raw.Nonce {
		return ErrWrongNonce
	}
	return nil
}
