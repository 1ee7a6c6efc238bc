// Package snark implements groth16 proof verification over BN254 for proofs
// and verification keys in the snarkjs JSON wire format.
package snark

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	dErrors "zkconsent/pkg/domain-errors"
)

// Proof is a groth16 proof in snarkjs JSON form. Coordinates are decimal
// strings; pi_a and pi_c carry a trailing projective "1", pi_b a trailing
// ["1","0"] pair.
type Proof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol,omitempty"`
	Curve    string     `json:"curve,omitempty"`
}

// VerifyingKey is a groth16 verification key in snarkjs JSON form.
type VerifyingKey struct {
	Protocol string     `json:"protocol,omitempty"`
	Curve    string     `json:"curve,omitempty"`
	NPublic  int        `json:"nPublic"`
	Alpha1   []string   `json:"vk_alpha_1"`
	Beta2    [][]string `json:"vk_beta_2"`
	Gamma2   [][]string `json:"vk_gamma_2"`
	Delta2   [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

// ValidateStructure checks that the proof carries every component the pairing
// check needs, and names the first missing one. It does not touch the curve.
func (p *Proof) ValidateStructure() error {
	if p == nil {
		return dErrors.New(dErrors.CodeStructuralProof, "proof document missing")
	}
	var missing []string
	if len(p.PiA) < 2 {
		missing = append(missing, "pi_a")
	}
	if len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 {
		missing = append(missing, "pi_b")
	}
	if len(p.PiC) < 2 {
		missing = append(missing, "pi_c")
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeStructuralProof,
			fmt.Sprintf("proof missing components: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// ValidateStructure checks the verification key has the groth16 shape.
func (vk *VerifyingKey) ValidateStructure() error {
	if vk == nil {
		return dErrors.New(dErrors.CodeStructuralProof, "verification key missing")
	}
	var missing []string
	if len(vk.Alpha1) < 2 {
		missing = append(missing, "vk_alpha_1")
	}
	if len(vk.Beta2) < 2 {
		missing = append(missing, "vk_beta_2")
	}
	if len(vk.Gamma2) < 2 {
		missing = append(missing, "vk_gamma_2")
	}
	if len(vk.Delta2) < 2 {
		missing = append(missing, "vk_delta_2")
	}
	if len(vk.IC) == 0 {
		missing = append(missing, "IC")
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeStructuralProof,
			fmt.Sprintf("verification key missing components: %s", strings.Join(missing, ", ")))
	}
	return nil
}

func parseFieldElement(dec string) (*fp.Element, error) {
	n, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", dec)
	}
	if n.Sign() < 0 || n.Cmp(fp.Modulus()) >= 0 {
		return nil, fmt.Errorf("coordinate out of field range: %q", dec)
	}
	var e fp.Element
	e.SetBigInt(n)
	return &e, nil
}

func parseScalar(dec string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", dec)
	}
	return new(big.Int).Mod(n, fr.Modulus()), nil
}

// parseG1 decodes a snarkjs G1 point [x, y, (z)]. A trailing z must be "1" or
// "0"; "0" denotes the point at infinity.
func parseG1(coords []string) (*bn254.G1Affine, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("G1 point needs at least 2 coordinates, got %d", len(coords))
	}
	if len(coords) >= 3 && coords[2] == "0" {
		var p bn254.G1Affine
		return &p, nil
	}
	if len(coords) >= 3 && coords[2] != "1" {
		return nil, fmt.Errorf("G1 point not in affine form: z=%q", coords[2])
	}
	x, err := parseFieldElement(coords[0])
	if err != nil {
		return nil, fmt.Errorf("G1 x: %w", err)
	}
	y, err := parseFieldElement(coords[1])
	if err != nil {
		return nil, fmt.Errorf("G1 y: %w", err)
	}
	var p bn254.G1Affine
	p.X = *x
	p.Y = *y
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("G1 point not on curve")
	}
	if !p.IsInSubGroup() {
		return nil, fmt.Errorf("G1 point not in subgroup")
	}
	return &p, nil
}

// parseG2 decodes a snarkjs G2 point [[x0,x1],[y0,y1],([z0,z1])]. snarkjs
// orders each pair as [A0, A1].
func parseG2(coords [][]string) (*bn254.G2Affine, error) {
	if len(coords) < 2 || len(coords[0]) < 2 || len(coords[1]) < 2 {
		return nil, fmt.Errorf("G2 point needs 2 coordinate pairs")
	}
	if len(coords) >= 3 && len(coords[2]) >= 1 && coords[2][0] == "0" {
		var p bn254.G2Affine
		return &p, nil
	}
	x0, err := parseFieldElement(coords[0][0])
	if err != nil {
		return nil, fmt.Errorf("G2 x.a0: %w", err)
	}
	x1, err := parseFieldElement(coords[0][1])
	if err != nil {
		return nil, fmt.Errorf("G2 x.a1: %w", err)
	}
	y0, err := parseFieldElement(coords[1][0])
	if err != nil {
		return nil, fmt.Errorf("G2 y.a0: %w", err)
	}
	y1, err := parseFieldElement(coords[1][1])
	if err != nil {
		return nil, fmt.Errorf("G2 y.a1: %w", err)
	}
	var p bn254.G2Affine
	p.X.A0 = *x0
	p.X.A1 = *x1
	p.Y.A0 = *y0
	p.Y.A1 = *y1
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("G2 point not on curve")
	}
	if !p.IsInSubGroup() {
		return nil, fmt.Errorf("G2 point not in subgroup")
	}
	return &p, nil
}
