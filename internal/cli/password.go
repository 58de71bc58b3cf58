package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ai-orchestrator/pkg/config"
	"ai-orchestrator/pkg/utils/password"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash an admin password for " + config.EnvAdminPasswordHash,
		Long: `Print an argon2id hash suitable for auth.admin_password_hash.

Without an argument the password is read from the first line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password from stdin: %w", err)
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			if plain == "" {
				return fmt.Errorf("password must not be empty")
			}

			hash, err := password.HashPassword(plain)
			if err != nil {
				return err
			}
			writeln(cmd.OutOrStdout(), "%s", hash)
			return nil
		},
	}
}
