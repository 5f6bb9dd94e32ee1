// Package main provides the fswatch CLI application.
//
// fswatch streams recursive filesystem changes for one or more roots,
// remembering the last processed event ID so a restarted watch replays
// what happened while it was not running.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fswatch", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	showVersion := fs.Bool("version", false, "show version information")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(out, "fswatch %s\n", version)
		return nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return showUsage(out)
	}

	command := rest[0]

	switch command {
	case "watch":
		cmd, err := parseWatchFlags(*configPath, rest[1:])
		if err != nil {
			return err
		}
		cmd.out = out
		return cmd.Execute()
	case "decode":
		return runDecodeCommand(out, rest[1:])
	case "config":
		cmd := &configCommand{configPath: *configPath, out: out}
		return cmd.Execute(rest[1:])
	case "checkpoint":
		cmd := &checkpointCommand{configPath: *configPath, out: out}
		return cmd.Execute(rest[1:])
	case "help":
		return showUsage(out)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// showUsage displays usage information.
func showUsage(out io.Writer) error {
	usage := `fswatch - recursive filesystem change monitor

Usage:
  fswatch [flags] <command> [command flags]

Commands:
  watch       Stream changes under one or more paths
  decode      Decode raw event flag words
  config      Configuration management (show, path, reset)
  checkpoint  Resume checkpoint management (list, show, reset)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Watch Command Flags:
  -format     Output format (table, json, simple; default: table on a terminal, json otherwise)
  -since      Start point: "now", "checkpoint" or an event ID
  -latency    Coalescing window (e.g., 50ms, 1s)
  -exclude    Comma-separated subtrees the stream skips (at most 8)
  -ignore     Comma-separated glob patterns dropped from output
  -flags      Show decoded flags with each event
  -ids        Show event IDs
  -metrics    Serve Prometheus metrics on this address

Examples:
  # Watch the current directory
  fswatch watch .

  # Watch two trees, skipping .git, as JSON lines
  fswatch watch -format json -exclude ./src/.git ./src ./docs

  # Hide editor swap files and build output
  fswatch watch -ignore '*.swp,/build' .

  # Ignore the stored checkpoint and start from now
  fswatch watch -since now ~/Projects

  # Replay from a known event ID
  fswatch watch -since 1234567 ~/Projects

  # Explain a flag word
  fswatch decode 0x11002

  # Show stored checkpoints
  fswatch checkpoint list

Version: %s
`

	_, err := fmt.Fprintf(out, usage, version)
	return err
}
