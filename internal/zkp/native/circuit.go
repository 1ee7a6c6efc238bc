// Package native compiles and proves the built-in circuits with gnark, and
// converts the results to the snarkjs wire format the verifier consumes.
package native

import "github.com/consensys/gnark/frontend"

// AgeCircuit proves the holder's age meets a minimum without revealing the
// birth year. The challenge scalar is a public input so the proof is bound
// to one consent session.
type AgeCircuit struct {
	BirthYear frontend.Variable

	CurrentYear frontend.Variable `gnark:",public"`
	MinAge      frontend.Variable `gnark:",public"`
	Challenge   frontend.Variable `gnark:",public"`
}

// Define encodes currentYear - birthYear >= minAge.
func (c *AgeCircuit) Define(api frontend.API) error {
	age := api.Sub(c.CurrentYear, c.BirthYear)
	api.AssertIsLessOrEqual(c.MinAge, age)
	// the challenge needs no arithmetic relation; as a public input it is
	// already part of the verified statement
	api.AssertIsEqual(c.Challenge, c.Challenge)
	return nil
}
