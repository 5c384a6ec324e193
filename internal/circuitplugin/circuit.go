// Package circuitplugin is the pluggable SNARK hook: the envelope
// protocol in internal/withdrawal and internal/compliance is specified
// independently of any proof system, so a real SNARK can be plugged in
// without changing the external shape. This package is NOT on the
// default envelope path; it is the optional backend a caller selects.
//
// MembershipCircuit proves that a single commitment is simultaneously a
// leaf of the deposit tree and of an ASP's membership tree, generalizing
// the combined-attribute circuit this core's predecessor used for KYC
// checks into a circuit over the two Merkle witnesses the compliance
// envelope otherwise only records the roots of.
package circuitplugin

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/accumulator/merkle"
	"github.com/consensys/gnark/std/hash/mimc"
)

// MembershipCircuit is the combined deposit-tree + ASP-tree membership
// circuit. Depth is fixed at compile time via the length of the path
// slices.
type MembershipCircuit struct {
	// Private witness.
	Commitment      frontend.Variable   `gnark:",secret"`
	DepositPath     []frontend.Variable `gnark:",secret"`
	DepositHelper   []frontend.Variable `gnark:",secret"`
	AssociationPath []frontend.Variable `gnark:",secret"`
	AssociationHelper []frontend.Variable `gnark:",secret"`

	// Public inputs.
	DepositRoot     frontend.Variable `gnark:",public"`
	AssociationRoot frontend.Variable `gnark:",public"`
}

func verifyMembership(api frontend.API, hasher *mimc.MiMC, commitment frontend.Variable, path, helper []frontend.Variable, root frontend.Variable) {
	fullPath := make([]frontend.Variable, len(path)+1)
	fullPath[0] = commitment
	copy(fullPath[1:], path)

	leafIndex := frontend.Variable(0)
	power := 1
	for _, bit := range helper {
		leafIndex = api.Add(leafIndex, api.Mul(bit, power))
		power <<= 1
	}

	proof := merkle.MerkleProof{
		RootHash: root,
		Path:     fullPath,
	}
	proof.VerifyProof(api, hasher, leafIndex)
}

// Define declares the circuit constraints: the same commitment must be
// a verified leaf of both the deposit tree and the association tree.
func (c *MembershipCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	verifyMembership(api, &hasher, c.Commitment, c.DepositPath, c.DepositHelper, c.DepositRoot)
	hasher.Reset()
	verifyMembership(api, &hasher, c.Commitment, c.AssociationPath, c.AssociationHelper, c.AssociationRoot)

	return nil
}
