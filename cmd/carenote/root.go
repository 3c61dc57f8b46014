package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kazu-apps/carenote-sync/internal/config"
	"github.com/kazu-apps/carenote-sync/internal/crypto"
	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/remote"
	"github.com/kazu-apps/carenote-sync/internal/repository/sqlite"
	"github.com/kazu-apps/carenote-sync/internal/validate"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "carenote",
		Short:        "CareNote offline-first sync client",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "config file (YAML)")

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newDaemonCommand(opts))
	cmd.AddCommand(newRecordCommand(opts))
	cmd.AddCommand(newOccurrencesCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "carenote %s (%s)\n", version, buildDate)
		},
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "carenote", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "carenote", "config.yaml")
}

// app is what every command needs: config, logger and the local store.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	validator *validate.Validator
	deviceID  string
	out       io.Writer
	now       func() time.Time
}

func openApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Device.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	deviceID := cfg.Device.ID
	if deviceID == "" {
		if deviceID, err = loadDeviceID(cfg.Device.DataDir); err != nil {
			return nil, err
		}
	}
	v, err := validate.New()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return &app{
		cfg:       cfg,
		log:       log.With(zap.String("device", deviceID)),
		store:     store,
		validator: v,
		deviceID:  deviceID,
		out:       cmd.OutOrStdout(),
		now:       time.Now,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.log.Sync()
}

func (a *app) dialRemote() (*remote.Client, error) {
	if a.cfg.Server.Token == "" {
		return nil, errors.New("server.token is not configured (CARENOTE_SERVER_TOKEN)")
	}
	return remote.Dial(a.cfg.Remote())
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deviceIDPath(dir string) string { return filepath.Join(dir, "device_id") }

// loadDeviceID returns the device id stored in dir, creating one on first use.
func loadDeviceID(dir string) (string, error) {
	b, err := os.ReadFile(deviceIDPath(dir))
	if err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	id, err := crypto.NewDeviceID()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(deviceIDPath(dir), []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

func readAll(in io.Reader, p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(p)
}
