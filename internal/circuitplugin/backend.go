package circuitplugin

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Witness is the prover-side input to a membership proof: a commitment
// plus its two Merkle paths, as field-sized big.Ints already extracted
// from a merkle.Proof by the caller.
type Witness struct {
	Commitment        *big.Int
	DepositPath       []*big.Int
	DepositHelper     []*big.Int
	AssociationPath   []*big.Int
	AssociationHelper []*big.Int
	DepositRoot       *big.Int
	AssociationRoot   *big.Int
}

// ProvingBackend is the interface internal/withdrawal and
// internal/compliance can optionally hand their membership checks to,
// instead of (or in addition to) the default SHA-256 envelope.
type ProvingBackend interface {
	Prove(w Witness) ([]byte, error)
	Verify(proof []byte, depositRoot, associationRoot *big.Int) (bool, error)
}

// Groth16Backend is a ProvingBackend over MembershipCircuit. Proving
// parameters are held on the instance rather than in a package-level
// singleton, so construction and lifetime are the caller's
// responsibility and tests can run isolated backends in parallel.
type Groth16Backend struct {
	depth int
	ccs   constraint.ConstraintSystem
	pk    groth16.ProvingKey
	vk    groth16.VerifyingKey
}

// NewGroth16Backend compiles MembershipCircuit for the given tree depth
// and runs a trusted setup, returning a ready-to-use backend.
func NewGroth16Backend(depth int) (*Groth16Backend, error) {
	template := &MembershipCircuit{
		DepositPath:       make([]frontend.Variable, depth),
		DepositHelper:     make([]frontend.Variable, depth),
		AssociationPath:   make([]frontend.Variable, depth),
		AssociationHelper: make([]frontend.Variable, depth),
	}

	field := ecc.BN254.ScalarField()
	ccs, err := frontend.Compile(field, r1cs.NewBuilder, template)
	if err != nil {
		return nil, fmt.Errorf("circuitplugin: compile: %w", err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("circuitplugin: setup: %w", err)
	}

	return &Groth16Backend{depth: depth, ccs: ccs, pk: pk, vk: vk}, nil
}

func (b *Groth16Backend) assignment(w Witness) (*MembershipCircuit, error) {
	if len(w.DepositPath) != b.depth || len(w.DepositHelper) != b.depth ||
		len(w.AssociationPath) != b.depth || len(w.AssociationHelper) != b.depth {
		return nil, fmt.Errorf("circuitplugin: witness path length does not match backend depth %d", b.depth)
	}

	toVars := func(in []*big.Int) []frontend.Variable {
		out := make([]frontend.Variable, len(in))
		for i, v := range in {
			out[i] = v
		}
		return out
	}

	return &MembershipCircuit{
		Commitment:        w.Commitment,
		DepositPath:       toVars(w.DepositPath),
		DepositHelper:     toVars(w.DepositHelper),
		AssociationPath:   toVars(w.AssociationPath),
		AssociationHelper: toVars(w.AssociationHelper),
		DepositRoot:       w.DepositRoot,
		AssociationRoot:   w.AssociationRoot,
	}, nil
}

// Prove produces a serialized Groth16 proof for w.
func (b *Groth16Backend) Prove(w Witness) ([]byte, error) {
	assignment, err := b.assignment(w)
	if err != nil {
		return nil, err
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("circuitplugin: build witness: %w", err)
	}

	proof, err := groth16.Prove(b.ccs, b.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("circuitplugin: prove: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("circuitplugin: serialize proof: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify checks a serialized proof against the public deposit and
// association roots.
func (b *Groth16Backend) Verify(proofBytes []byte, depositRoot, associationRoot *big.Int) (bool, error) {
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("circuitplugin: deserialize proof: %w", err)
	}

	publicAssignment := &MembershipCircuit{
		DepositPath:       make([]frontend.Variable, b.depth),
		DepositHelper:     make([]frontend.Variable, b.depth),
		AssociationPath:   make([]frontend.Variable, b.depth),
		AssociationHelper: make([]frontend.Variable, b.depth),
		DepositRoot:       depositRoot,
		AssociationRoot:   associationRoot,
	}
	witness, err := frontend.NewWitness(publicAssignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("circuitplugin: build public witness: %w", err)
	}

	if err := groth16.Verify(proof, b.vk, witness); err != nil {
		return false, nil
	}
	return true, nil
}
