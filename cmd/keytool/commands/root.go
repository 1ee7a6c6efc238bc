// Package commands implements the keytool CLI: groth16 setup and key
// provisioning, plus offline proof generation and checking for the built-in
// age circuit.
package commands

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	root := &cobra.Command{
		Use:   "keytool",
		Short: "Provision verification keys and work with age proofs",
	}
	root.AddCommand(exportCmd(), proveCmd(), verifyCmd())
	return root.Execute()
}
