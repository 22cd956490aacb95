package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"burndown/internal/infrastructure/postgres"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show this month's API call usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		status, err := rt.service.BudgetStatus(ctx)
		if err != nil {
			return err
		}

		if viper.GetBool("json") {
			return printJSON(cmd.OutOrStdout(), status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Month:     %s\nUsed:      %d\nLimit:     %d\nRemaining: %d\nAllowed:   %t\n",
			status.Month, status.Used, status.Limit, status.Remaining, status.Allowed)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync a household's connections now",
	Long: `Pulls transactions and balances for every connection of a household,
or only --connection when given, and reconciles them into the household document.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		householdID, err := requireHousehold()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		connectionID, _ := cmd.Flags().GetString("connection")
		result, err := rt.service.SyncHousehold(ctx, householdID, connectionID)
		if err != nil {
			return err
		}

		if viper.GetBool("json") {
			return printJSON(cmd.OutOrStdout(), result)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Accounts updated: %d\n", result.AccountsUpdated)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tACTION\tNAME\tBALANCE")
		for _, u := range result.Updates {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", u.Kind, u.Action, u.Name, u.Balance)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, s := range result.Skipped {
			fmt.Fprintf(out, "Skipped %s (%s): cooling down for %dms\n", s.ConnectionID, s.InstitutionName, s.WaitMs)
		}
		return nil
	},
}

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List a household's linked institutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		householdID, err := requireHousehold()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		views, err := rt.service.ListConnections(ctx, householdID)
		if err != nil {
			return err
		}

		if viper.GetBool("json") {
			return printJSON(cmd.OutOrStdout(), views)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tINSTITUTION\tSYNCED\tCREATED")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", v.ID, v.InstitutionName, v.HasSynced, v.CreatedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := postgres.RunMigrations(cfg.Database.URL(), nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}

func init() {
	syncCmd.Flags().String("connection", "", "sync only this connection")
}
