package snark

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	dErrors "zkconsent/pkg/domain-errors"
)

// Verify runs the groth16 pairing check:
//
//	e(A, B) = e(alpha, beta) * e(vk_x, gamma) * e(C, delta)
//
// where vk_x = IC[0] + sum(signal_i * IC[i+1]). It returns (false, nil) when
// the proof is well-formed but does not verify, and a non-nil error only for
// malformed inputs.
func Verify(vk *VerifyingKey, proof *Proof, publicSignals []string) (bool, error) {
	if err := proof.ValidateStructure(); err != nil {
		return false, err
	}
	if err := vk.ValidateStructure(); err != nil {
		return false, err
	}
	if len(publicSignals) != len(vk.IC)-1 {
		return false, dErrors.New(dErrors.CodeStructuralProof,
			fmt.Sprintf("expected %d public signals, got %d", len(vk.IC)-1, len(publicSignals)))
	}

	a, err := parseG1(proof.PiA)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse pi_a")
	}
	b, err := parseG2(proof.PiB)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse pi_b")
	}
	c, err := parseG1(proof.PiC)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse pi_c")
	}

	alpha, err := parseG1(vk.Alpha1)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse vk_alpha_1")
	}
	beta, err := parseG2(vk.Beta2)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse vk_beta_2")
	}
	gamma, err := parseG2(vk.Gamma2)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse vk_gamma_2")
	}
	delta, err := parseG2(vk.Delta2)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse vk_delta_2")
	}

	vkx, err := accumulateInputs(vk.IC, publicSignals)
	if err != nil {
		return false, err
	}

	// moving e(A, B) to the other side turns the check into a product of
	// four pairings equal to one
	var negA bn254.G1Affine
	negA.Neg(a)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, *alpha, *vkx, *c},
		[]bn254.G2Affine{*b, *beta, *gamma, *delta},
	)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "pairing check")
	}
	return ok, nil
}

// accumulateInputs computes vk_x = IC[0] + sum(signal_i * IC[i+1]).
func accumulateInputs(ic [][]string, publicSignals []string) (*bn254.G1Affine, error) {
	vkx, err := parseG1(ic[0])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStructuralProof, "parse IC[0]")
	}
	acc := *vkx
	for i, sig := range publicSignals {
		s, err := parseScalar(sig)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStructuralProof,
				fmt.Sprintf("parse public signal %d", i))
		}
		base, err := parseG1(ic[i+1])
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStructuralProof,
				fmt.Sprintf("parse IC[%d]", i+1))
		}
		var term bn254.G1Affine
		term.ScalarMultiplication(base, new(big.Int).Set(s))
		acc.Add(&acc, &term)
	}
	return &acc, nil
}
