package commands

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/spf13/cobra"

	"zkconsent/internal/credential"
	"zkconsent/internal/zkp/native"
)

func proveCmd() *cobra.Command {
	var (
		birthYear   int
		currentYear int
		minAge      int
		challenge   string
		out         string
		keyOut      string
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Generate an age proof bundle and its matching verification key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if birthYear == 0 {
				return fmt.Errorf("--birth-year is required")
			}
			if currentYear == 0 {
				currentYear = time.Now().Year()
			}

			c := new(big.Int)
			if challenge == "" {
				var err error
				c, err = rand.Int(rand.Reader, fr.Modulus())
				if err != nil {
					return err
				}
			} else if _, ok := c.SetString(challenge, 10); !ok {
				return fmt.Errorf("challenge must be a decimal scalar")
			}

			prover, err := native.NewAgeProver()
			if err != nil {
				return err
			}
			proof, signals, err := prover.Prove(birthYear, native.AgeStatement{
				CurrentYear: currentYear,
				MinAge:      minAge,
				Challenge:   c,
			})
			if err != nil {
				return err
			}

			raw, err := json.MarshalIndent(credential.ProofBundle{
				Proof:         proof,
				PublicSignals: signals,
			}, "", "  ")
			if err != nil {
				return err
			}

			if keyOut != "" {
				vk, err := prover.VerifyingKey()
				if err != nil {
					return err
				}
				rawKey, err := json.MarshalIndent(vk, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(keyOut, rawKey, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", keyOut)
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			}
			if err := os.WriteFile(out, raw, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().IntVar(&birthYear, "birth-year", 0, "birth year of the subject")
	cmd.Flags().IntVar(&currentYear, "current-year", 0, "reference year (default: this year)")
	cmd.Flags().IntVar(&minAge, "min-age", 18, "minimum age the proof attests to")
	cmd.Flags().StringVar(&challenge, "challenge", "", "decimal challenge scalar (default: random)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the proof bundle to a file instead of stdout")
	cmd.Flags().StringVar(&keyOut, "key-out", "", "write the matching verification key to a file")
	return cmd
}
