package cmd

import (
	"fmt"
	"os"

	"document-reconciliation-service/cmd/reconcore/config"
	"document-reconciliation-service/internal/service"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	dbPath  string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconcore",
	Short: "Document reconciliation service",
	Long: `Reconcore ingests transaction exports (bank CSV, PayPal, Stripe,
Mollie, DATEV), enriches uploaded documents, matches them against open
transactions, and books confident matches automatically.

Examples:
  reconcore import Konto_1200_140125_093000.csv
  reconcore document upload invoice.pdf
  reconcore worker
  reconcore job status <job-id>`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "reconcore.db", "path to the sqlite database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("RECONCORE")
	viper.AutomaticEnv()

	if viper.GetBool("verbose") {
		cfg := logger.DefaultConfig()
		cfg.Level = logger.DebugLevel
		if l, err := logger.NewLogger(cfg); err == nil {
			logger.SetGlobalLogger(l)
		}
	}
}

// openService builds the full service stack for a command invocation.
// The returned closer must run before the process exits.
func openService() (*service.Service, func(), error) {
	s, err := store.Open(viper.GetString("db"))
	if err != nil {
		return nil, nil, err
	}

	svc, err := service.New(s, config.CreateExtractor(), config.CreateSuggester(), service.Options{
		MatcherConfig: config.CreateMatcherConfig(),
		Thresholds:    config.CreateThresholds(),
		QueueConfig:   config.CreateQueueConfig(),
		CacheTTL:      viper.GetDuration("cache-ttl"),
	})
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	return svc, func() { s.Close() }, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
