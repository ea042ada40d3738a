package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fy0/odatakit"
	"github.com/fy0/odatakit/httptransport"
	"github.com/fy0/odatakit/internal/config"
	"github.com/fy0/odatakit/internal/observability"
)

const defaultConfigName = ".odatactl.toml"

type rootOptions struct {
	configPath string
}

// app is what every networked command needs, built from the loaded config.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	client *odatakit.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "odatactl",
		Short:         "Query and write OData v4 services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/"+defaultConfigName+" when present)")

	root.AddCommand(
		newURLCmd(),
		newQueryCmd(opts),
		newBatchCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *rootOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, defaultConfigName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return path
}

func (o *rootOptions) loadApp() (*app, error) {
	cfg, err := config.Load(o.resolveConfigPath())
	if err != nil {
		return nil, err
	}
	logger, err := observability.InitLogger("odatactl", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.HTTP.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	transport, err := httptransport.New(
		httptransport.WithTimeout(timeout),
		httptransport.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	clientOpts := []odatakit.ClientOption{
		odatakit.WithAPIPath(cfg.Instance.APIPath),
		odatakit.WithMaxBatchSize(cfg.HTTP.MaxBatchSize),
	}
	if token := cfg.Instance.BearerToken(); token != "" {
		clientOpts = append(clientOpts, odatakit.WithBearerToken(token))
	}
	if cfg.HTTP.PageSize > 0 {
		clientOpts = append(clientOpts, odatakit.WithHeader(odatakit.HeaderPrefer, fmt.Sprintf("odata.maxpagesize=%d", cfg.HTTP.PageSize)))
	}
	client, err := odatakit.NewClient(cfg.Instance.BaseURL, transport, clientOpts...)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("service_root", client.ServiceRoot()).
		Dur("timeout", timeout).
		Int("max_batch_size", client.MaxBatchSize()).
		Msg("client ready")
	return &app{cfg: cfg, logger: logger, client: client}, nil
}
