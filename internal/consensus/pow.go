// Package consensus implements the proof-of-work acceptance test and the
// nonce search used to satisfy it. Difficulty is a single global target
// fixed at genesis; there is no retargeting in this design.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Errors returned by header verification.
var (
	ErrZeroDifficulty   = errors.New("difficulty must not be the zero hash")
	ErrWrongTarget      = errors.New("header difficulty does not match the chain's")
	ErrInsufficientWork = errors.New("header hash does not meet its stated difficulty")
)

// PoW is a stateless proof-of-work engine: it holds no chain state of its
// own, since difficulty is a constant carried by the caller (the
// blockchain's genesis-derived target).
type PoW struct {
	// Threads controls how many goroutines search the nonce space in
	// parallel during Seal. 0 or 1 means single-threaded.
	Threads int
}

// New creates a PoW engine with the given parallelism.
func New(threads int) *PoW {
	return &PoW{Threads: threads}
}

// VerifyHeader checks that header's hash is within its own stated
// difficulty, and that the stated difficulty matches the chain's
// target. It takes no PoW state, since the check is stateless; it
// hangs off PoW only so callers already holding one don't need a
// second entry point.
func (p *PoW) VerifyHeader(header *block.Header, chainTarget types.Hash) error {
	return VerifyHeader(header, chainTarget)
}

// VerifyHeader is the package-level form of (*PoW).VerifyHeader, used by
// internal/blockchain's PowValidityCheck, which has no PoW engine of its own.
func VerifyHeader(header *block.Header, chainTarget types.Hash) error {
	if header.Difficulty.IsZero() {
		return ErrZeroDifficulty
	}
	if header.Difficulty != chainTarget {
		return ErrWrongTarget
	}
	if !header.Hash().LessOrEqual(header.Difficulty) {
		return ErrInsufficientWork
	}
	return nil
}

// Seal mines header in place: it samples nonces until header.Hash() is
// within difficulty, setting header.Difficulty and header.Nonce on
// success. Seal blocks until a nonce is found or ctx is cancelled, in
// which case it returns ctx.Err() with the header unmodified.
func (p *PoW) Seal(ctx context.Context, header *block.Header, difficulty types.Hash) error {
	candidate := *header
	candidate.Difficulty = difficulty
	var err error
	if p.Threads > 1 {
		err = p.sealParallel(ctx, &candidate, difficulty)
	} else {
		err = p.sealSingle(ctx, &candidate, difficulty)
	}
	if err != nil {
		return err
	}
	*header = candidate
	return nil
}

func (p *PoW) sealSingle(ctx context.Context, header *block.Header, difficulty types.Hash) error {
	nonce := rand.Uint32()
	for i := uint32(0); ; i++ {
		if i&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		header.Nonce = nonce + i
		if header.Hash().LessOrEqual(difficulty) {
			return nil
		}
		if i == ^uint32(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

// sealParallel searches the nonce space with p.Threads goroutines, each
// starting at an independent random offset and striding by the thread
// count, first-found-wins.
func (p *PoW) sealParallel(ctx context.Context, header *block.Header, difficulty types.Hash) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	threads := p.Threads
	found := make(chan uint32, 1)
	var wg sync.WaitGroup

	for t := 0; t < threads; t++ {
		wg.Add(1)
		start := rand.Uint32()
		stride := uint32(threads)
		go func() {
			defer wg.Done()
			h := *header
			for i := uint32(0); ; i += stride {
				if (i/stride)&0xFFFF == 0 && i > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}
				h.Nonce = start + i
				if h.Hash().LessOrEqual(difficulty) {
					select {
					case found <- h.Nonce:
					default:
					}
					cancel()
					return
				}
				if i > ^uint32(0)-stride {
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case nonce, ok := <-found:
		if !ok {
			return fmt.Errorf("nonce space exhausted")
		}
		header.Nonce = nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
