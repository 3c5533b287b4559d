package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rterm/internal/store"
	"rterm/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rterm",
	Short: "Remote terminal client",
	Long: `A command-line client for shells running on an rterm server.

Terminals keep running on the server when you detach, and can be reattached
later by caption or handle. Keystrokes are encrypted with the server's public
key before they leave this machine.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		cfg.Log.ConfigureZerolog()
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rterm/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "rterm server URL")
	rootCmd.PersistentFlags().String("token", "", "JWT token for authentication")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	viper.BindPFlag("server.endpoint", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("auth.token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func GetConfig() *config.Config {
	return cfg
}

// openRegistry loads the local terminal registry named by the configuration.
func openRegistry() (*store.Registry, error) {
	path, err := GetConfig().StorePath()
	if err != nil {
		return nil, err
	}
	return store.Load(path)
}
