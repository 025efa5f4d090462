package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
	"github.com/iamlordofplatinumforest/FTP-client/internal/config"
)

// app is the state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	host       string
	port       int
	user       string
	password   string
	dir        string
	logLevel   string
	limit      string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "ftpclient",
		Short: "Browse and transfer files on an FTP server",
		Long: `
ftpclient runs one FTP operation per invocation: it connects, optionally
changes to --dir, does the work and disconnects.

Folder transfers are best effort. Failed items are reported at the end and
the exit status is non-zero.
`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath+")")
	flags.StringVar(&a.host, "host", "", "server host name")
	flags.IntVar(&a.port, "port", 0, "server port")
	flags.StringVarP(&a.user, "user", "u", "", "user name")
	flags.StringVarP(&a.password, "password", "p", "", "password")
	flags.StringVarP(&a.dir, "dir", "C", "", "remote directory to change to first")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&a.limit, "limit", "", "bandwidth limit per second, e.g. 512KiB")

	root.AddCommand(
		newLsCmd(a),
		newPwdCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newMkdirCmd(a),
		newRmCmd(a),
		newMvCmd(a),
		newCpCmd(a),
		newWatchCmd(a),
	)

	// Report errors once, in the user-facing form.
	root.SetOut(stdout)
	root.SetErr(stderr)
	return wrapErrors(root, stderr)
}

func wrapErrors(root *cobra.Command, stderr io.Writer) *cobra.Command {
	for _, c := range root.Commands() {
		run := c.RunE
		if run == nil {
			continue
		}
		c.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			if err != nil {
				_, msg := ftpclient.Describe(err)
				fmt.Fprintln(stderr, "Error:", msg)
			}
			return err
		}
	}
	return root
}

// setup loads the configuration and applies flags that were set
// explicitly.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		return err
	}

	flags := cmd.Flags()
	override(flags, "host", &cfg.Host, a.host)
	override(flags, "port", &cfg.Port, a.port)
	override(flags, "user", &cfg.User, a.user)
	override(flags, "password", &cfg.Password, a.password)
	override(flags, "dir", &cfg.Dir, a.dir)
	override(flags, "log-level", &cfg.LogLevel, a.logLevel)
	override(flags, "limit", &cfg.BandwidthLimit, a.limit)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		return err
	}
	if cfg.Host == "" {
		err := errors.New("no host given; use --host, FTPCLIENT_HOST or the config file")
		fmt.Fprintln(a.stderr, "Error:", err)
		return err
	}

	level, _ := cfg.Level()
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	a.cfg = cfg
	return nil
}

func override[T any](flags *pflag.FlagSet, name string, dst *T, v T) {
	if flags.Changed(name) {
		*dst = v
	}
}

// connect opens a session and changes to the configured directory.
func (a *app) connect(ctx context.Context, extra ...ftpclient.Option) (*ftpclient.Manager, error) {
	opts, err := a.cfg.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, ftpclient.WithLogger(a.logger))
	opts = append(opts, extra...)

	m, err := ftpclient.New(opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Connect(ctx, a.cfg.Params()); err != nil {
		return nil, err
	}
	if a.cfg.Dir != "" {
		if err := m.ChangeDirectory(ctx, a.cfg.Dir); err != nil {
			m.Disconnect()
			return nil, err
		}
	}
	return m, nil
}

// withManager connects, runs fn and disconnects.
func (a *app) withManager(ctx context.Context, fn func(*ftpclient.Manager) error) error {
	m, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer m.Disconnect()
	return fn(m)
}
