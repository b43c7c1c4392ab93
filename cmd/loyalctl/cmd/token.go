package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"loyalgate/internal/auth/token"
)

type tokenFlags struct {
	tenant  string
	subject string
	session string
	scopes  []string
	ttl     time.Duration
}

func newTokenCmd(load Loader) *cobra.Command {
	var f tokenFlags
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a session token for a tenant user",
		Example: `  loyalctl token --tenant 6f1c... --scopes points:read,points:write
  loyalctl token --tenant 6f1c... --subject 2b9e... --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			req, err := f.request()
			if err != nil {
				return err
			}
			if req.TTL <= 0 {
				req.TTL = cfg.Auth.TokenTTL
			}
			signed, err := token.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience).Issue(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&f.subject, "subject", "", "user id; a random one is used when empty")
	cmd.Flags().StringVar(&f.session, "session", "", "session id; omitted when empty")
	cmd.Flags().StringSliceVar(&f.scopes, "scopes", nil, "comma separated scopes")
	cmd.Flags().DurationVar(&f.ttl, "ttl", 0, "token lifetime; defaults to auth.token_ttl")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func (f tokenFlags) request() (token.IssueRequest, error) {
	req := token.IssueRequest{Scopes: f.scopes, TTL: f.ttl}
	var err error
	if req.TenantID, err = uuid.Parse(f.tenant); err != nil {
		return req, fmt.Errorf("invalid --tenant: %w", err)
	}
	req.UserID = uuid.New()
	if f.subject != "" {
		if req.UserID, err = uuid.Parse(f.subject); err != nil {
			return req, fmt.Errorf("invalid --subject: %w", err)
		}
	}
	if f.session != "" {
		if req.SessionID, err = uuid.Parse(f.session); err != nil {
			return req, fmt.Errorf("invalid --session: %w", err)
		}
	}
	return req, nil
}
