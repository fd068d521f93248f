package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/volsplit/internal/codec"
	"github.com/ligustah/volsplit/internal/config"
	rhttp "github.com/ligustah/volsplit/internal/http"
	"github.com/ligustah/volsplit/pkg/volume"
)

// Exit codes
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitInvalidArgs       = 2
	ExitSourceNotAccess   = 3
	ExitRangeNotSupported = 4
	ExitStorageError      = 5
	ExitOutputExists      = 6
	ExitValidationFailed  = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	return execute(args, os.Stdin, os.Stdout, os.Stderr)
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// cli is the state shared by every command.
type cli struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	configPath string
	flags      config.Config
	cfg        config.Config
	log        *zap.Logger
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr, log: zap.NewNop()}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	defer c.log.Sync()
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "volsplit",
		Short: "Split, combine and check sharded 3-D voxel volumes",
		Long: `volsplit stores large voxel volumes as a set of shard files in object
storage, described by a {name}.manifest.json file, and converts between
shard layouts.

Buckets are gocloud URLs: file:///data, mem://, s3://bucket?region=...,
gs://bucket.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitf(ExitInvalidArgs, "%w", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&c.flags.Bucket, "bucket", "", "Bucket URL")
	pf.IntVar(&c.flags.Workers, "workers", 0, "Number of output shards written in parallel")
	pf.BoolVar(&c.flags.Progress, "progress", false, "Show progress output")
	pf.BoolVar(&c.flags.Force, "force", false, "Overwrite existing volumes and skip confirmation")
	pf.StringVar(&c.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		c.importCommand(),
		c.splitCommand(),
		c.combineCommand(),
		c.copyCommand(),
		c.validateCommand(),
		c.deleteCommand(),
	)
	return root
}

// setup resolves configuration: defaults, then file, then environment, then
// flags.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(c.configPath); err != nil {
			return exitf(ExitInvalidArgs, "%w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return exitf(ExitInvalidArgs, "%w", err)
	}
	cfg = cfg.Merge(c.flags)
	if err := cfg.Validate(); err != nil {
		return exitf(ExitInvalidArgs, "%w", err)
	}
	c.cfg = cfg

	level, _ := zapcore.ParseLevel(cfg.LogLevel)
	encoder := zap.NewDevelopmentEncoderConfig()
	encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
	c.log = zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoder),
		zapcore.Lock(zapcore.AddSync(c.stderr)),
		level,
	)).Named(cmd.Name())
	return nil
}

func (c *cli) openBucket(ctx context.Context) (*blob.Bucket, error) {
	bkt, err := blob.OpenBucket(ctx, c.cfg.Bucket)
	if err != nil {
		return nil, exitf(ExitStorageError, "open bucket: %w", err)
	}
	return bkt, nil
}

func (c *cli) factory(bkt *blob.Bucket) *codec.Factory {
	return codec.NewFactory(bkt,
		codec.WithLogger(c.log),
		codec.WithHTTPClient(rhttp.NewClient(c.cfg.HTTPOptions(c.log))),
	)
}

func (c *cli) loadManifest(ctx context.Context, bkt *blob.Bucket, name string) (*volume.Manifest, error) {
	m, err := volume.LoadManifest(ctx, bkt, name)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, exitf(ExitSourceNotAccess, "volume %q not found", name)
		}
		return nil, err
	}
	return m, nil
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, rhttp.ErrRangeNotSupported):
		return ExitRangeNotSupported
	case errors.Is(err, rhttp.ErrNotFound), errors.Is(err, rhttp.ErrForbidden), errors.Is(err, rhttp.ErrUnauthorized):
		return ExitSourceNotAccess
	case errors.Is(err, volume.ErrInvalidDescriptor), errors.Is(err, codec.ErrUnknownFormat), errors.Is(err, codec.ErrUnknownVoxelType):
		return ExitInvalidArgs
	case gcerrors.Code(err) == gcerrors.NotFound:
		return ExitSourceNotAccess
	case errors.Is(err, codec.ErrSizeMismatch), errors.Is(err, volume.ErrOutOfRange):
		return ExitValidationFailed
	}
	// cobra reports argument errors as plain errors.
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "required flag", "accepts ", "requires "} {
		if strings.HasPrefix(msg, prefix) {
			return ExitInvalidArgs
		}
	}
	return ExitGeneralError
}
