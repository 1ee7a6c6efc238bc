package snark

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "zkconsent/pkg/domain-errors"
)

// g1Dec returns k*G1 as snarkjs decimal coordinates.
func g1Dec(k int64) []string {
	_, _, g1, _ := bn254.Generators()
	var p bn254.G1Affine
	p.ScalarMultiplication(&g1, big.NewInt(k))
	return []string{p.X.String(), p.Y.String(), "1"}
}

// g2Dec returns k*G2 as snarkjs decimal coordinate pairs in [A0, A1] order.
func g2Dec(k int64) [][]string {
	_, _, _, g2 := bn254.Generators()
	var p bn254.G2Affine
	p.ScalarMultiplication(&g2, big.NewInt(k))
	return [][]string{
		{p.X.A0.String(), p.X.A1.String()},
		{p.Y.A0.String(), p.Y.A1.String()},
		{"1", "0"},
	}
}

// testVK builds a degenerate but algebraically consistent verification key:
// alpha = G, beta = gamma = delta = H, IC = [G, G]. With one public signal s,
// vk_x = (1+s)*G, so a proof (A, B, C) verifies iff
// e(A, B) = e(G, H)^(1 + (1+s) + 1).
func testVK() *VerifyingKey {
	return &VerifyingKey{
		Protocol: "groth16",
		Curve:    "bn128",
		NPublic:  1,
		Alpha1:   g1Dec(1),
		Beta2:    g2Dec(1),
		Gamma2:   g2Dec(1),
		Delta2:   g2Dec(1),
		IC:       [][]string{g1Dec(1), g1Dec(1)},
	}
}

func TestVerifyAcceptsConsistentProof(t *testing.T) {
	// s=5 -> exponent 1 + 6 + 1 = 8, so A must be 8*G with B = H, C = G
	proof := &Proof{
		PiA:      g1Dec(8),
		PiB:      g2Dec(1),
		PiC:      g1Dec(1),
		Protocol: "groth16",
	}

	ok, err := Verify(testVK(), proof, []string{"5"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsInconsistentProof(t *testing.T) {
	proof := &Proof{
		PiA: g1Dec(9), // off by one pairing factor
		PiB: g2Dec(1),
		PiC: g1Dec(1),
	}

	ok, err := Verify(testVK(), proof, []string{"5"})
	require.NoError(t, err, "a well-formed failing proof is not an error")
	assert.False(t, ok)
}

func TestVerifyRejectsWrongSignal(t *testing.T) {
	proof := &Proof{
		PiA: g1Dec(8),
		PiB: g2Dec(1),
		PiC: g1Dec(1),
	}

	ok, err := Verify(testVK(), proof, []string{"6"})
	require.NoError(t, err)
	assert.False(t, ok, "a proof must be bound to its public signals")
}

func TestVerifySignalCountMismatch(t *testing.T) {
	proof := &Proof{PiA: g1Dec(8), PiB: g2Dec(1), PiC: g1Dec(1)}

	_, err := Verify(testVK(), proof, []string{"5", "7"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStructuralProof))

	_, err = Verify(testVK(), proof, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStructuralProof))
}

func TestVerifyStructuralErrors(t *testing.T) {
	vk := testVK()

	_, err := Verify(vk, &Proof{PiB: g2Dec(1), PiC: g1Dec(1)}, []string{"5"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeStructuralProof))
	assert.Contains(t, err.Error(), "pi_a")

	_, err = Verify(vk, &Proof{PiA: g1Dec(8), PiC: g1Dec(1)}, []string{"5"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeStructuralProof))
	assert.Contains(t, err.Error(), "pi_b")

	_, err = Verify(vk, nil, []string{"5"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStructuralProof))
}

func TestVerifyRejectsOffCurvePoint(t *testing.T) {
	proof := &Proof{
		PiA: []string{"3", "7", "1"}, // (3,7) is not on the curve
		PiB: g2Dec(1),
		PiC: g1Dec(1),
	}

	_, err := Verify(testVK(), proof, []string{"5"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeStructuralProof))
	assert.Contains(t, err.Error(), "pi_a")
}

func TestVerifyRejectsNonDecimalCoordinates(t *testing.T) {
	proof := &Proof{
		PiA: []string{"0x01", "2", "1"},
		PiB: g2Dec(1),
		PiC: g1Dec(1),
	}

	_, err := Verify(testVK(), proof, []string{"5"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStructuralProof))
}

func TestProofValidateStructureNamesMissing(t *testing.T) {
	err := (&Proof{}).ValidateStructure()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pi_a")
	assert.Contains(t, err.Error(), "pi_b")
	assert.Contains(t, err.Error(), "pi_c")
}

func TestParseG1PointAtInfinity(t *testing.T) {
	p, err := parseG1([]string{"0", "1", "0"})
	require.NoError(t, err)
	assert.True(t, p.IsInfinity())
}

func TestPublicSignalReducedModOrder(t *testing.T) {
	// signal r+5 is congruent to 5, so the same proof must verify
	r := new(big.Int).Add(fr.Modulus(), big.NewInt(5))
	proof := &Proof{PiA: g1Dec(8), PiB: g2Dec(1), PiC: g1Dec(1)}

	ok, err := Verify(testVK(), proof, []string{r.String()})
	require.NoError(t, err)
	assert.True(t, ok)
}
