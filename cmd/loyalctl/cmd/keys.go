package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"loyalgate/pkg/secrets"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new API key and its storage hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := secrets.Generate()
			if err != nil {
				return err
			}
			hash, err := secrets.Hash(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:    %s\n", raw)
			fmt.Fprintf(out, "hash:   %s\n", hash)
			fmt.Fprintf(out, "masked: %s\n", secrets.Mask(raw))
			return nil
		},
	}
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <key>",
		Short: "Print the storage hash of an existing API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !secrets.WellFormed(args[0]) {
				return errors.New("not a well-formed api key")
			}
			hash, err := secrets.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
