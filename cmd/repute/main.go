package main

import (
	"fmt"
	"os"

	"repute-go/internal/app"
	"repute-go/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the application defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", defaults.ConfigPath, err)
	}
	return cfg, nil
}

// newApp reads the config and creates a LedgerApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateProfile", "Audit").
func newApp(operation string) (*app.LedgerApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewLedgerApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "repute",
	Short:        "Reputation ledger",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		nodeID := uuid.New().String()
		cfg := config.NewConfig(nodeID, defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Node ID:  %s\n", nodeID)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Node ID:          %s\n", cfg.NodeID)
		fmt.Printf("Base Dir:         %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:          %s\n", cfg.LogDir)
		fmt.Printf("Database:         %s %s\n", cfg.Database.Type, cfg.Database.Path(cfg.NodeID))
		fmt.Printf("Encryption:       %s\n", cfg.Encryption.Type)
		fmt.Printf("Min Stake:        %s\n", cfg.Ledger.MinStakeAmount)
		fmt.Printf("Max Reviews/User: %d\n", cfg.Ledger.MaxReviewsPerUser)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:            %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.Flags().Bool("show", false, "Print the public key instead of generating keys")
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultValidateCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbBackupCmd)

	accountCmd.AddCommand(accountNewCmd)

	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileDeactivateCmd)
	profileCmd.AddCommand(profileShowCmd)

	rateCmd.Flags().Uint8P("score", "s", 0, "Overall score, 1 to 5")
	rateCmd.Flags().Uint8("communication", 0, "Communication sub-score")
	rateCmd.Flags().Uint8("reliability", 0, "Reliability sub-score")
	rateCmd.Flags().Uint8("quality", 0, "Quality sub-score")
	rateCmd.Flags().Uint8("professionalism", 0, "Professionalism sub-score")
	rateCmd.Flags().String("review-hash", "", "Hex digest of the off-ledger review")
	rateCmd.MarkFlagRequired("score")

	topCmd.Flags().IntP("limit", "n", 10, "Maximum number of profiles to show")
	eventsCmd.Flags().IntP("limit", "n", 50, "Maximum number of events to show (0 for all)")

	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotImportCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
	snapshotExportCmd.Flags().BoolP("encrypt", "e", false, "Encrypt to the configured key")
	snapshotExportCmd.Flags().Bool("armor", false, "Write ASCII-armored ciphertext (implies --encrypt)")
	snapshotCmd.AddCommand(snapshotPushCmd)
	snapshotCmd.AddCommand(snapshotPullCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotPushCmd.Flags().BoolP("encrypt", "e", false, "Encrypt to the configured key")
	for _, c := range []*cobra.Command{snapshotPushCmd, snapshotPullCmd, snapshotListCmd} {
		c.Flags().String("vault", "", "Vault name (default: first configured vault)")
	}

	var defaultAccount string
	if d, err := app.GetDefaults(); err == nil {
		defaultAccount = d.Account
	}
	rootCmd.PersistentFlags().String("as", defaultAccount, "Account to act as (default $REPUTE_ACCOUNT)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(stakeCmd)
	rootCmd.AddCommand(ratingsCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(snapshotCmd)
}
