package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lazypower/matchmaker/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "matchmaker",
	Short: "Introduce channel members to each other",
	Long: "Matchmaker suggests who in a channel a member should meet, remembers every suggestion " +
		"so pairings are not repeated, and records when an introduction turns into a conversation.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $MATCHMAKER_CONFIG or ~/.matchmaker/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(interactCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(optoutCmd)
	rootCmd.AddCommand(optinCmd)
	rootCmd.AddCommand(expireCmd)
}

// loadConfig resolves the config file path and loads it.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("MATCHMAKER_CONFIG")
	}
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".matchmaker", "config.yaml")
		}
	}
	return config.Load(path)
}
