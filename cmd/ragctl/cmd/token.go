package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/samargunners/par-delta-dashboard/internal/pkg/jwtutil"
)

var (
	tokenUserID   uint
	tokenUsername string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token for the dashboard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
		}
		token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, ttl, tokenUserID, tokenUsername)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().UintVar(&tokenUserID, "user-id", 0, "User id carried in the token")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "dashboard", "Username carried in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to auth.jwt_expire_minute)")
	rootCmd.AddCommand(tokenCmd)
}
