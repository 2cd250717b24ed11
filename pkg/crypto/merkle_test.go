package crypto

import (
	"testing"

	"github.com/klingnet-labs/nodecore/pkg/types"
)

func leaves(n int) []types.Hash {
	hs := make([]types.Hash, n)
	for i := range hs {
		hs[i] = Hash([]byte{byte(i)})
	}
	return hs
}

func TestNewTree_Empty(t *testing.T) {
	if _, err := NewTree(nil); err == nil {
		t.Error("NewTree(nil) should error")
	}
	if _, err := NewTree([]types.Hash{}); err == nil {
		t.Error("NewTree(empty) should error")
	}
}

func TestNewTree_SingleLeaf(t *testing.T) {
	h := Hash([]byte("only"))
	tree, err := NewTree([]types.Hash{h})
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	if tree.Root() != h {
		t.Errorf("single-leaf root = %s, want %s", tree.Root(), h)
	}

	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("Proof(0) error: %v", err)
	}
	if len(proof) != 0 {
		t.Errorf("single-leaf proof length = %d, want 0", len(proof))
	}
	if !VerifyProof(tree.Root(), h, proof, 0, 1) {
		t.Error("single-leaf proof should verify")
	}
}

func TestNewTree_OddLevelDuplicatesLast(t *testing.T) {
	hs := leaves(3)
	tree, err := NewTree(hs)
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	left := HashConcat(hs[0], hs[1])
	right := HashConcat(hs[2], hs[2])
	want := HashConcat(left, right)
	if tree.Root() != want {
		t.Errorf("3-leaf root = %s, want %s", tree.Root(), want)
	}
}

// TestMerkleRoundTrip is P1: for every leaf of every non-empty tree
// size tested, proof(i) verifies against root(L) and hash(L[i]).
func TestMerkleRoundTrip(t *testing.T) {
	for n := 1; n <= 9; n++ {
		hs := leaves(n)
		tree, err := NewTree(hs)
		if err != nil {
			t.Fatalf("NewTree(%d leaves) error: %v", n, err)
		}
		for i := 0; i < n; i++ {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("Proof(%d) on %d-leaf tree: %v", i, n, err)
			}
			if !VerifyProof(tree.Root(), hs[i], proof, i, n) {
				t.Errorf("%d-leaf tree: proof for leaf %d did not verify", n, i)
			}
		}
	}
}

// TestMerkleSoundness is P2: mutating the leaf hash, any proof
// element, or the index passed to VerifyProof must make verification
// fail. Exercised on tree sizes with more than 2 leaves, since parity
// alone already distinguishes the only two indices of a 2-leaf tree.
func TestMerkleSoundness(t *testing.T) {
	hs := leaves(7)
	tree, err := NewTree(hs)
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	root := tree.Root()

	const target = 3
	proof, err := tree.Proof(target)
	if err != nil {
		t.Fatalf("Proof(%d) error: %v", target, err)
	}
	if !VerifyProof(root, hs[target], proof, target, len(hs)) {
		t.Fatal("baseline proof should verify before mutation")
	}

	t.Run("mutated leaf", func(t *testing.T) {
		wrongLeaf := Hash([]byte("not the real leaf"))
		if VerifyProof(root, wrongLeaf, proof, target, len(hs)) {
			t.Error("verify should fail with a mutated leaf hash")
		}
	})

	t.Run("mutated proof element", func(t *testing.T) {
		corrupted := make([]types.Hash, len(proof))
		copy(corrupted, proof)
		corrupted[0] = Hash([]byte("corrupted sibling"))
		if VerifyProof(root, hs[target], corrupted, target, len(hs)) {
			t.Error("verify should fail with a mutated proof element")
		}
	})

	t.Run("mutated index", func(t *testing.T) {
		for i := 0; i < len(hs); i++ {
			if i == target {
				continue
			}
			if VerifyProof(root, hs[target], proof, i, len(hs)) {
				t.Errorf("verify should fail when index is mutated from %d to %d", target, i)
			}
		}
	})
}

func TestVerifyProof_WrongProofLength(t *testing.T) {
	hs := leaves(5)
	tree, err := NewTree(hs)
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("Proof() error: %v", err)
	}
	truncated := proof[:len(proof)-1]
	if VerifyProof(tree.Root(), hs[2], truncated, 2, len(hs)) {
		t.Error("verify should fail when proof length does not match ceil(log2(leafCount))")
	}
}

func TestVerifyProof_IndexOutOfRange(t *testing.T) {
	hs := leaves(4)
	tree, err := NewTree(hs)
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("Proof() error: %v", err)
	}
	if VerifyProof(tree.Root(), hs[0], proof, -1, len(hs)) {
		t.Error("negative index should fail verification")
	}
	if VerifyProof(tree.Root(), hs[0], proof, len(hs), len(hs)) {
		t.Error("out-of-range index should fail verification")
	}
}

func TestTree_Proof_IndexOutOfRange(t *testing.T) {
	tree, err := NewTree(leaves(4))
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	if _, err := tree.Proof(-1); err == nil {
		t.Error("Proof(-1) should error")
	}
	if _, err := tree.Proof(4); err == nil {
		t.Error("Proof(leafCount) should error")
	}
}

func TestTree_RootDeterministic(t *testing.T) {
	hs := leaves(6)
	t1, err := NewTree(hs)
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	t2, err := NewTree(hs)
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	if t1.Root() != t2.Root() {
		t.Error("two trees over the same leaves should share a root")
	}
}

func TestTree_OrderMatters(t *testing.T) {
	a := Hash([]byte("a"))
	b := Hash([]byte("b"))

	t1, err := NewTree([]types.Hash{a, b})
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	t2, err := NewTree([]types.Hash{b, a})
	if err != nil {
		t.Fatalf("NewTree() error: %v", err)
	}
	if t1.Root() == t2.Root() {
		t.Error("reordering leaves should change the root")
	}
}
