package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

const defaultAddr = "127.0.0.1:4317"

var (
	backendURL string
	apiKey     string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "configsync",
	Short:         "Synchronize application configuration with its backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel, logFormat)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "configsync version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "http://"+defaultAddr, "backend base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("CONFIGSYNC_AUTH_KEY"), "API key sent as X-API-KEY")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	rootCmd.AddCommand(serveCmd, getCmd, setCmd, watchCmd, versionCmd)
}

func setupLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logrus.WithError(err).Error("configsync failed")
		os.Exit(1)
	}
}
