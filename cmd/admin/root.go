package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"burndown/internal/shared/config"
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Burndown admin CLI",
	Long: `Management commands for the Burndown sync engine.

Flags can also be set through the environment with the BURNDOWN_ prefix,
for example BURNDOWN_HOUSEHOLD=abc123.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	viper.SetEnvPrefix("burndown")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("household", "", "household ID")
	flags.Duration("timeout", 10*time.Minute, "timeout for the operation")
	flags.Bool("json", false, "print results as JSON")
	for _, name := range []string{"household", "timeout", "json"} {
		cobra.CheckErr(viper.BindPFlag(name, flags.Lookup(name)))
	}

	rootCmd.AddCommand(budgetCmd, syncCmd, connectionsCmd, migrateCmd)
}

// commandContext applies the --timeout flag.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
}

// requireHousehold reads --household, falling back to BURNDOWN_HOUSEHOLD.
func requireHousehold() (string, error) {
	id := strings.TrimSpace(viper.GetString("household"))
	if id == "" {
		return "", fmt.Errorf("--household (or BURNDOWN_HOUSEHOLD) is required")
	}
	return id, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
