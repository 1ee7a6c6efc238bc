package native

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"zkconsent/internal/zkp/snark"
	dErrors "zkconsent/pkg/domain-errors"
)

// CircuitAgeVerification is the circuit name the age prover registers its
// verification key under.
const CircuitAgeVerification = "ageVerification"

// Prover holds a compiled circuit and its groth16 keys, and produces proofs
// in the snarkjs wire format.
type Prover struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// NewAgeProver compiles the age circuit and runs the groth16 setup.
// Setup keys are per-process; persistent deployments provision them with the
// keytool and load the verification key from the store.
func NewAgeProver() (*Prover, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &AgeCircuit{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compile age circuit")
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "groth16 setup")
	}
	return &Prover{ccs: ccs, pk: pk, vk: vk}, nil
}

// AgeStatement is the public part of an age proof.
type AgeStatement struct {
	CurrentYear int
	MinAge      int
	Challenge   *big.Int
}

// Prove generates a groth16 proof that birthYear satisfies the statement,
// returning the proof and public signals in snarkjs form. The proof is
// self-verified before it leaves the prover.
func (p *Prover) Prove(birthYear int, stmt AgeStatement) (*snark.Proof, []string, error) {
	assignment := &AgeCircuit{
		BirthYear:   birthYear,
		CurrentYear: stmt.CurrentYear,
		MinAge:      stmt.MinAge,
		Challenge:   stmt.Challenge,
	}

	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "build witness")
	}

	proof, err := groth16.Prove(p.ccs, p.pk, w)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "statement does not hold")
	}

	pub, err := w.Public()
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "extract public witness")
	}
	if err := groth16.Verify(proof, p.vk, pub); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "self-check failed")
	}

	wireProof, err := ConvertProof(proof)
	if err != nil {
		return nil, nil, err
	}
	signals, err := PublicSignals(pub)
	if err != nil {
		return nil, nil, err
	}
	return wireProof, signals, nil
}

// VerifyingKey exports the prover's verification key in snarkjs form.
func (p *Prover) VerifyingKey() (*snark.VerifyingKey, error) {
	return ConvertVerifyingKey(p.vk)
}
