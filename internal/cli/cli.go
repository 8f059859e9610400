// Package cli provides the archivist command-line interface with injectable io.Writer for testing.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Defacto2/archivist"
	"github.com/Defacto2/archivist/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ErrMissing = errors.New("member not found")

// CLI represents the command-line interface.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version

	configPath string
	verbose    bool
	logger     *zap.Logger
	facade     *archivist.Facade
	cfg        *config.Config

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// Execute runs the command line arguments, without the program name.
// Errors are printed to Err and returned.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	root := c.Command()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
	}
	return err
}

// Command returns the root command with every subcommand attached.
func (c *CLI) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "archivist",
		Short:         "List, extract and add members of zip and rar family archives.",
		Version:       c.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
	}
	root.SetOut(c.Out)
	root.SetErr(c.Err)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose development logging")
	root.AddCommand(
		c.listCommand(),
		c.extractCommand(),
		c.extractAllCommand(),
		c.addCommand(),
		c.coverCommand(),
		c.policyCommand(),
		c.methodsCommand(),
		c.detailsCommand(),
		c.initCommand(),
	)
	return root
}

func (c *CLI) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger, err := c.newLogger()
	if err != nil {
		return fmt.Errorf("logger %w", err)
	}
	f, err := archivist.New(cfg, archivist.WithLogger(logger))
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	c.facade = f
	return nil
}

func (c *CLI) newLogger() (*zap.Logger, error) {
	if c.verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
