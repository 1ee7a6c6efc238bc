package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zkconsent/internal/credential"
	"zkconsent/internal/zkp/snark"
)

func verifyCmd() *cobra.Command {
	var (
		keyPath    string
		bundlePath string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a proof bundle against an exported verification key",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawKey, err := os.ReadFile(keyPath)
			if err != nil {
				return err
			}
			var vk snark.VerifyingKey
			if err := json.Unmarshal(rawKey, &vk); err != nil {
				return fmt.Errorf("parse verification key: %w", err)
			}

			rawBundle, err := os.ReadFile(bundlePath)
			if err != nil {
				return err
			}
			var bundle credential.ProofBundle
			if err := json.Unmarshal(rawBundle, &bundle); err != nil {
				return fmt.Errorf("parse proof bundle: %w", err)
			}

			ok, err := snark.Verify(&vk, bundle.Proof, bundle.PublicSignals)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("pairing check failed: proof is invalid")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "proof is valid")
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "verification key file")
	cmd.Flags().StringVarP(&bundlePath, "bundle", "b", "", "proof bundle file")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}
