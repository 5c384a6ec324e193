package circuitplugin_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/circuitplugin"
)

// Building a backend for a small depth compiles the circuit and runs a
// real trusted setup; it is the cheapest way to exercise the full
// compile-and-setup path without a depth-20 circuit's cost.
func TestNewGroth16BackendSmallDepth(t *testing.T) {
	backend, err := circuitplugin.NewGroth16Backend(2)
	require.NoError(t, err)
	assert.NotNil(t, backend)
}

func TestProveRejectsMismatchedWitnessDepth(t *testing.T) {
	backend, err := circuitplugin.NewGroth16Backend(4)
	require.NoError(t, err)

	w := circuitplugin.Witness{
		Commitment:        big.NewInt(1),
		DepositPath:       []*big.Int{big.NewInt(1), big.NewInt(2)},
		DepositHelper:     []*big.Int{big.NewInt(0), big.NewInt(1)},
		AssociationPath:   []*big.Int{big.NewInt(1), big.NewInt(2)},
		AssociationHelper: []*big.Int{big.NewInt(0), big.NewInt(1)},
		DepositRoot:       big.NewInt(3),
		AssociationRoot:   big.NewInt(3),
	}

	_, err = backend.Prove(w)
	assert.Error(t, err)
}

func TestGroth16BackendSatisfiesProvingBackend(t *testing.T) {
	var _ circuitplugin.ProvingBackend = (*circuitplugin.Groth16Backend)(nil)
}
