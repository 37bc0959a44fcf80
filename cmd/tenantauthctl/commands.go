package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/clients"
	"github.com/MrEthical07/tenantauth/internal"
	"github.com/MrEthical07/tenantauth/permission"
)

// operator is the caller used for administrative commands run from the shell.
func operator() tenantauth.Caller {
	return tenantauth.Caller{
		UserID:      "tenantauthctl",
		Username:    "tenantauthctl",
		Permissions: permission.NewSet(tenantauth.PermSystemAdmin),
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b backend) error {
				if err := b.EnsureSchema(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "schema up to date")
				return nil
			})
		},
	}
}

func newBootstrapClientCmd(a *app) *cobra.Command {
	var (
		secret string
		rotate bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap-client",
		Short: "Register the platform OAuth2 client",
		Long: "Registers " + clients.SystemClientID + " unless it already exists. The secret is " +
			"printed once; pass --rotate to issue a new one for an existing registration.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b backend) error {
				_, err := b.Clients().FindByClientID(ctx, clients.SystemClientID)
				exists := err == nil
				if err != nil && !errors.Is(err, clients.ErrNotFound) {
					return err
				}

				cfg := a.cfg
				cfg.ClientCache.BootstrapSystemClient = !exists
				if !exists {
					if secret == "" {
						secret = internal.NewClientSecret()
					}
					cfg.ClientCache.SystemClientSecret = secret
				}

				engine, err := b.Engine(cfg, a.log)
				if err != nil {
					return err
				}
				defer engine.Close()

				switch {
				case !exists:
					return a.printJSON(tenantauth.ClientCredentials{
						ClientID:     clients.SystemClientID,
						ClientSecret: secret,
						ClientName:   "HMS System Client",
						Message:      "Store this secret now. It cannot be retrieved later.",
					})
				case rotate:
					creds, err := engine.RotateClientSecret(ctx, operator(), clients.SystemClientID)
					if err != nil {
						return err
					}
					return a.printJSON(creds)
				default:
					fmt.Fprintf(a.out, "%s already registered; use --rotate to issue a new secret\n", clients.SystemClientID)
					return nil
				}
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "secret to register instead of a generated one")
	cmd.Flags().BoolVar(&rotate, "rotate", false, "rotate the secret of an existing registration")
	return cmd
}

func newTempPasswordCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "temp-password",
		Short: "Reset a user to a generated temporary password",
		Long:  "Unlocks the account, sets a temporary password and requires a change at next login.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user-id is required")
			}
			return a.withBackend(cmd, func(ctx context.Context, b backend) error {
				cfg := a.cfg
				cfg.ClientCache.BootstrapSystemClient = false
				engine, err := b.Engine(cfg, a.log)
				if err != nil {
					return err
				}
				defer engine.Close()

				temp, err := engine.ResetPasswordToTemporary(ctx, operator(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, temp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "id of the user to reset")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var tenantCode, identifier, pw string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate a user and print the issued token pair",
		Long:  "Reads the password from --password or, when omitted, from the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if identifier == "" {
				return errors.New("--username is required")
			}
			if pw == "" {
				line, err := bufio.NewReader(a.in).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password required on stdin or --password")
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			return a.withBackend(cmd, func(ctx context.Context, b backend) error {
				cfg := a.cfg
				cfg.ClientCache.BootstrapSystemClient = false
				engine, err := b.Engine(cfg, a.log)
				if err != nil {
					return err
				}
				defer engine.Close()

				pair, err := engine.Login(ctx, tenantCode, identifier, pw)
				if err != nil {
					return err
				}
				return a.printJSON(pair)
			})
		},
	}
	cmd.Flags().StringVar(&tenantCode, "tenant", "", "tenant code")
	cmd.Flags().StringVar(&identifier, "username", "", "username or email")
	cmd.Flags().StringVar(&pw, "password", "", "password (prefer stdin)")
	return cmd
}
