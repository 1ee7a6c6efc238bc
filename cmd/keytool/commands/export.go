package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"zkconsent/internal/platform/database"
	"zkconsent/internal/vkey"
	"zkconsent/internal/zkp/native"
)

func exportCmd() *cobra.Command {
	var (
		out         string
		databaseURL string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run the groth16 setup and export the verification key",
		RunE: func(cmd *cobra.Command, args []string) error {
			prover, err := native.NewAgeProver()
			if err != nil {
				return err
			}
			vk, err := prover.VerifyingKey()
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(vk, "", "  ")
			if err != nil {
				return err
			}

			if databaseURL != "" {
				cfg := database.DefaultConfig()
				cfg.URL = databaseURL
				pool, err := database.New(cfg)
				if err != nil {
					return err
				}
				defer pool.Close()

				store := vkey.NewPostgres(pool.DB())
				err = store.Put(cmd.Context(), &vkey.Record{
					CircuitName: native.CircuitAgeVerification,
					Key:         raw,
					UpdatedAt:   time.Now().UTC(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored verification key for %q\n", native.CircuitAgeVerification)
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
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the key to a file instead of stdout")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "also store the key in postgres")
	return cmd
}
