// Package cmd implements loyalctl, the operator CLI for minting credentials offline.
package cmd

import (
	"github.com/spf13/cobra"

	"loyalgate/internal/platform/config"
)

// Loader supplies the configuration the token command signs with.
type Loader func() (*config.Config, error)

// NewRootCmd builds the loyalctl command tree.
func NewRootCmd(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:   "loyalctl",
		Short: "loyalgate operator CLI",
		Long: `loyalctl generates API keys and signs session tokens using the same
configuration as the loyalgate server (LOYALGATE_* environment, .env, config file).`,
		SilenceUsage: true,
	}
	root.AddCommand(newKeygenCmd(), newHashCmd(), newTokenCmd(load))
	return root
}
