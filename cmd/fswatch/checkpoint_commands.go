package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/0xmhha/fsevent-watcher/pkg/checkpoint"
	"github.com/0xmhha/fsevent-watcher/pkg/config"
	"github.com/0xmhha/fsevent-watcher/pkg/display"
	"github.com/0xmhha/fsevent-watcher/pkg/logger"
)

// checkpointCommand handles resume checkpoint subcommands.
type checkpointCommand struct {
	configPath string
	out        io.Writer
}

// Execute runs the checkpoint command with given arguments.
func (c *checkpointCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "list":
		return c.runList(subargs)
	case "show":
		return c.runShow(subargs)
	case "reset":
		return c.runReset(subargs)
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown checkpoint subcommand: %s", subcommand)
	}
}

// openStore loads configuration and opens the checkpoint database.
func (c *checkpointCommand) openStore() (checkpoint.Store, error) {
	cfg, err := config.NewLoader(c.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	store, err := checkpoint.Open(checkpoint.Config{DBPath: cfg.Storage.DBPath}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return store, nil
}

// runList displays every stored checkpoint.
func (c *checkpointCommand) runList(args []string) error {
	fs := flag.NewFlagSet("checkpoint list", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := display.ParseFormat(*format)
	if err != nil {
		return err
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cps, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	return display.New(display.Config{Format: f}).FormatCheckpoints(c.out, cps)
}

// runShow displays the checkpoint for a set of roots.
func (c *checkpointCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("checkpoint show", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := display.ParseFormat(*format)
	if err != nil {
		return err
	}

	key, err := keyForArgs(fs.Args())
	if err != nil {
		return err
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cp, err := store.Get(key)
	if errors.Is(err, checkpoint.ErrNotFound) {
		_, err = fmt.Fprintln(c.out, "No checkpoint stored for these paths")
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	return display.New(display.Config{Format: f}).FormatCheckpoints(c.out, []*checkpoint.Checkpoint{cp})
}

// runReset deletes stored checkpoints so the next watch starts from now.
func (c *checkpointCommand) runReset(args []string) error {
	fs := flag.NewFlagSet("checkpoint reset", flag.ContinueOnError)
	all := fs.Bool("all", false, "delete every checkpoint")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*all && fs.NArg() == 0 {
		return fmt.Errorf("checkpoint reset requires paths or -all")
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var keys []string
	if *all {
		cps, err := store.List()
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}
		for _, cp := range cps {
			keys = append(keys, cp.Key)
		}
	} else {
		key, err := keyForArgs(fs.Args())
		if err != nil {
			return err
		}
		keys = []string{key}
	}

	deleted := 0
	for _, key := range keys {
		err := store.Delete(key)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, checkpoint.ErrNotFound):
		default:
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
	}

	_, err = fmt.Fprintf(c.out, "Deleted %d checkpoint(s)\n", deleted)
	return err
}

// keyForArgs resolves paths the same way watch does and derives the key.
func keyForArgs(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", errNoPaths
	}
	roots, err := resolveRoots(paths)
	if err != nil {
		return "", err
	}
	return checkpoint.KeyForRoots(roots), nil
}

// showHelp displays help for checkpoint command.
func (c *checkpointCommand) showHelp() error {
	help := `Checkpoint - Resume checkpoint management

Usage:
  fswatch checkpoint <subcommand> [flags] [paths...]

Subcommands:
  list      Display all stored checkpoints
  show      Display the checkpoint for the given paths
  reset     Delete the checkpoint for the given paths

List/Show Flags:
  -format   Output format (table, json, simple) (default: table)

Reset Flags:
  -all      Delete every checkpoint

Examples:
  fswatch checkpoint list
  fswatch checkpoint show ~/Projects
  fswatch checkpoint reset -all
`
	_, err := fmt.Fprint(c.out, help)
	return err
}
