package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sardine-ai/go-config-sync/server"
	"github.com/sardine-ai/go-config-sync/source"
)

// serveSettings is the backend process configuration, read from an optional
// YAML file and overridden by flags.
type serveSettings struct {
	Addr       string          `yaml:"addr"`
	AuthKey    string          `yaml:"auth_key"`
	Repository source.Settings `yaml:"repository"`
}

var (
	settingsPath string
	serveFlags   serveSettings
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the configuration backend (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(settingsPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, &settings)
		return runServer(cmd.Context(), settings)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&settingsPath, "settings", "", "YAML settings file")
	f.StringVar(&serveFlags.Addr, "addr", defaultAddr, "listen address")
	f.StringVar(&serveFlags.Repository.Type, "repository", "file", "repository type (file, memory, gcs, s3, git)")
	f.StringVar(&serveFlags.Repository.Path, "path", "", "config file path (file) or path within the work tree (git)")
	f.StringVar(&serveFlags.Repository.Dir, "dir", "", "git work tree directory")
	f.StringVar(&serveFlags.Repository.Bucket, "bucket", "", "GCS or S3 bucket")
	f.StringVar(&serveFlags.Repository.Object, "object", "config.json", "GCS object or S3 key")
	f.StringVar(&serveFlags.Repository.Region, "region", "", "AWS region")
	f.StringVar(&serveFlags.Repository.Endpoint, "endpoint", "", "custom storage endpoint")
	f.BoolVar(&serveFlags.Repository.Watch, "watch", false, "reload the config file when it is edited externally")
}

func loadSettings(path string) (serveSettings, error) {
	settings := serveSettings{
		Addr:       defaultAddr,
		Repository: source.Settings{Type: "file", Object: "config.json"},
	}
	if path == "" {
		return settings, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return serveSettings{}, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil {
		return serveSettings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return settings, nil
}

// applyFlagOverrides copies explicitly set flags over file settings. The API
// key comes from the persistent flag or CONFIGSYNC_AUTH_KEY.
func applyFlagOverrides(cmd *cobra.Command, s *serveSettings) {
	flags := cmd.Flags()
	set := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	set("addr", &s.Addr, serveFlags.Addr)
	set("repository", &s.Repository.Type, serveFlags.Repository.Type)
	set("path", &s.Repository.Path, serveFlags.Repository.Path)
	set("dir", &s.Repository.Dir, serveFlags.Repository.Dir)
	set("bucket", &s.Repository.Bucket, serveFlags.Repository.Bucket)
	set("object", &s.Repository.Object, serveFlags.Repository.Object)
	set("region", &s.Repository.Region, serveFlags.Repository.Region)
	set("endpoint", &s.Repository.Endpoint, serveFlags.Repository.Endpoint)
	if flags.Changed("watch") {
		s.Repository.Watch = serveFlags.Repository.Watch
	}
	if apiKey != "" {
		s.AuthKey = apiKey
	}
}

func runServer(ctx context.Context, settings serveSettings) error {
	repo, err := source.NewRepository(ctx, settings.Repository)
	if err != nil {
		return fmt.Errorf("creating repository: %w", err)
	}
	backend, err := server.NewBackend(ctx, repo)
	if err != nil {
		return err
	}

	if settings.Repository.Watch {
		go func() {
			if err := backend.Watch(ctx); err != nil {
				logrus.WithError(err).Error("error watching repository")
			}
		}()
	}

	srv := server.NewServer(backend)
	srv.AuthKey = settings.AuthKey
	if srv.AuthKey == "" {
		logrus.Warn("no API key configured, commands are unauthenticated")
	}
	return srv.Start(ctx, settings.Addr)
}
