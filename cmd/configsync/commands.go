package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sardine-ai/go-config-sync/client"
	"github.com/sardine-ai/go-config-sync/model"
)

var newConfigSync = func() (*client.ConfigSync, error) {
	dispatcher, err := client.NewHTTPDispatcher(backendURL, apiKey)
	if err != nil {
		return nil, err
	}
	return client.NewConfigSync(dispatcher), nil
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the backend configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := newConfigSync()
		if err != nil {
			return err
		}
		cfg, err := cs.GetConfig(cmd.Context())
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

var setFile string

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the backend configuration",
	Long: `Replace the backend configuration with a complete snapshot.

With --file the snapshot is read from a JSON file holding all five settings.
Otherwise the current configuration is fetched and the given flags are applied
on top of it before the whole snapshot is sent back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := newConfigSync()
		if err != nil {
			return err
		}

		var cfg model.Config
		if setFile != "" {
			data, err := os.ReadFile(setFile)
			if err != nil {
				return err
			}
			if cfg, err = model.Unmarshal(data); err != nil {
				return err
			}
		} else {
			if cfg, err = cs.GetConfig(cmd.Context()); err != nil {
				return err
			}
			if err := applySetFlags(cmd, &cfg); err != nil {
				return err
			}
		}

		if err := cs.UpdateConfig(cmd.Context(), cfg); err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the configuration every time the backend replaces it",
	RunE: func(cmd *cobra.Command, args []string) error {
		wsURL, err := websocketURL(backendURL)
		if err != nil {
			return err
		}
		dispatcher, err := client.DialWS(cmd.Context(), wsURL, apiKey)
		if err != nil {
			return err
		}
		defer dispatcher.Close()

		cfg, err := client.NewConfigSync(dispatcher).AppReady(cmd.Context())
		if err != nil {
			return err
		}
		if err := printConfig(cmd.OutOrStdout(), cfg); err != nil {
			return err
		}

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case event, ok := <-dispatcher.Events():
				if !ok {
					return fmt.Errorf("connection to backend lost")
				}
				if event.Method != model.EventConfigUpdated {
					continue
				}
				cfg, err := model.Unmarshal(event.Payload)
				if err != nil {
					return err
				}
				if err := printConfig(cmd.OutOrStdout(), cfg); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	addSetFlags(setCmd)
}

func addSetFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&setFile, "file", "f", "", "JSON file with the complete configuration")
	f.Bool("auto-open", false, "open the provider page when champion select starts")
	f.Bool("auto-accept", false, "accept ready checks automatically")
	f.Uint32("accept-delay", 0, "milliseconds to wait before accepting")
	f.String("multi-provider", "", "multi-search provider")
	f.Bool("auto-report", false, "send end-of-game reports automatically")
	cmd.MarkFlagsMutuallyExclusive("file", "auto-open")
	cmd.MarkFlagsMutuallyExclusive("file", "auto-accept")
	cmd.MarkFlagsMutuallyExclusive("file", "accept-delay")
	cmd.MarkFlagsMutuallyExclusive("file", "multi-provider")
	cmd.MarkFlagsMutuallyExclusive("file", "auto-report")
}

// applySetFlags overrides the fields whose flags were given.
func applySetFlags(cmd *cobra.Command, cfg *model.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("auto-open") {
		if cfg.AutoOpen, err = flags.GetBool("auto-open"); err != nil {
			return err
		}
	}
	if flags.Changed("auto-accept") {
		if cfg.AutoAccept, err = flags.GetBool("auto-accept"); err != nil {
			return err
		}
	}
	if flags.Changed("accept-delay") {
		if cfg.AcceptDelay, err = flags.GetUint32("accept-delay"); err != nil {
			return err
		}
	}
	if flags.Changed("multi-provider") {
		if cfg.MultiProvider, err = flags.GetString("multi-provider"); err != nil {
			return err
		}
	}
	if flags.Changed("auto-report") {
		if cfg.AutoReport, err = flags.GetBool("auto-report"); err != nil {
			return err
		}
	}
	return nil
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func printConfig(w io.Writer, cfg model.Config) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
