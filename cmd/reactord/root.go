//go:build linux

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/legamerdc/reactor/internal/logging"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.3.0"

var (
	clog = logger.GetLogger("cmd")

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "reactord",
		Short: "multi-worker epoll TCP reactor",
		Long: fmt.Sprintf(`reactord (v%s)

Runs echo, framed and static-file services on a multi-worker epoll reactor,
and provides small clients to exercise them. Every flag can also be set via
environment variables REACTOR_<FLAG> (e.g. REACTOR_LOG_LEVEL=debug) or a .env file.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return logging.Init(viper.GetString("log-level"))
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of reactord",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("reactord v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(serveCmd, sendCmd, pingCmd, versionCmd)

	RootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// initConfig loads .env files and binds REACTOR_* environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("reactor")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
