// Command raro is the CLI entrypoint for the RARO runtime kernel.
//
// Usage:
//
//	raro serve --config kernel.yaml
//	raro validate --manifest workflow.yaml
//	raro version
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface, one command per kernel
// operation a deployer runs directly (the kernel's own runtime
// operations — start/resume/approve/reject — are exclusively reached
// over HTTP, per §4.12).
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the runtime kernel's HTTP/WS surface."`
	Validate ValidateCmd `cmd:"" help:"Validate a workflow manifest or kernel config file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("raro %s\n", buildVersion())
	return nil
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("raro"),
		kong.Description("RARO runtime kernel — dynamic DAG scheduler for multi-agent workflows"),
		kong.UsageOnError(),
	)

	level, err := parseLogLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	initLogger(level, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
