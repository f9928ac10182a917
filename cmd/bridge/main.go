// Command bridge is the CLI for the Bridge DSL: lint a document, print its
// canonical serialized form, or report the build version.
//
// Usage:
//
//	bridge lint schema.bridge
//	bridge format schema.bridge
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/config"
	"github.com/stackables/bridge/pkg/logger"
	"github.com/stackables/bridge/pkg/parser"
	"github.com/stackables/bridge/pkg/serializer"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Lint    LintCmd    `cmd:"" help:"Parse a Bridge document and report errors."`
	Format  FormatCmd  `cmd:"" help:"Parse and re-serialize a Bridge document to its canonical form."`
	Config  ConfigCmd  `cmd:"" help:"Load and validate a bridge runtime config file."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// ConfigCmd loads a bridge runtime config file (cache sizing, default
// trace level, stdlib namespaces) and reports its resolved values.
type ConfigCmd struct {
	File string `arg:"" help:"Path to a bridge config YAML file." type:"path"`
}

func (c *ConfigCmd) Run() error {
	logger.GetLogger().Debug("loading config", "file", c.File)
	cfg, err := config.LoadFile(c.File)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (log_level=%s trace_level=%s cache_size=%d namespaces=%v)\n",
		c.File, cfg.LogLevel, cfg.TraceLevel, cfg.CacheSize, cfg.Namespaces)
	return nil
}

// VersionCmd prints the module's build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("bridge version %s\n", version)
	return nil
}

// LintCmd parses a document and reports the first error, if any.
type LintCmd struct {
	File string `arg:"" help:"Path to a .bridge document." type:"path"`
}

func (c *LintCmd) Run() error {
	logger.GetLogger().Debug("linting document", "file", c.File)
	instrs, err := parseFile(c.File)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d instructions)\n", c.File, len(instrs))
	return nil
}

// FormatCmd parses a document and prints its canonical serialized form.
type FormatCmd struct {
	File string `arg:"" help:"Path to a .bridge document." type:"path"`
}

func (c *FormatCmd) Run() error {
	logger.GetLogger().Debug("formatting document", "file", c.File)
	instrs, err := parseFile(c.File)
	if err != nil {
		return err
	}
	out, err := serializer.Serialize(instrs)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func parseFile(path string) ([]ast.Instruction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bridge: reading %s: %w", path, err)
	}
	instrs, err := parser.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("bridge: %s: %w", path, err)
	}
	return instrs, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bridge"),
		kong.Description("Bridge DSL lint/format CLI."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logger.Init(level, os.Stderr, "simple")

	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
