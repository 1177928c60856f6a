package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/archdoc/internal/auth"
)

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [api-key]",
		Short: "Hash an API key for ARCHDOC_API_KEY_HASH",
		Long: `Print an Argon2id hash of an API key. Set the output as
ARCHDOC_API_KEY_HASH to keep the plaintext key out of the server's
environment. The key is read from the first line of stdin when omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					key = sc.Text()
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("hash-key: api key is empty")
			}
			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func newGenKeyCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate an Ed25519 key pair for JWT signing",
		Long: `Write jwt_private.pem and jwt_public.pem for ARCHDOC_JWT_PRIVATE_KEY and
ARCHDOC_JWT_PUBLIC_KEY. Without persistent keys the server signs with an
ephemeral pair and every token is invalidated on restart.

Existing files are never overwritten; delete them first to rotate keys.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privPath := filepath.Join(dir, "jwt_private.pem")
			pubPath := filepath.Join(dir, "jwt_public.pem")
			for _, path := range []string{privPath, pubPath} {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists; delete it first to rotate keys", path)
				}
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
			privPEM, pubPEM, err := auth.GenerateKeyPEM()
			if err != nil {
				return err
			}
			if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(pubPath, pubPEM, 0o600); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s\n", privPath)
			fmt.Fprintf(out, "wrote %s\n", pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data", "directory for the key files")
	return cmd
}
