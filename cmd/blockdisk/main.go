package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"

	"github.com/KevoDB/blockdisk/pkg/common/log"
	"github.com/KevoDB/blockdisk/pkg/config"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".geometry"),
	readline.PcItem("STORE"),
	readline.PcItem("STOREHEX"),
	readline.PcItem("CAT"),
	readline.PcItem("HEX"),
	readline.PcItem("DUMP"),
	readline.PcItem("DELETE"),
	readline.PcItem("FREE"),
	readline.PcItem("EXPORT"),
	readline.PcItem("IMPORT"),
)

// Options holds the command line configuration
type Options struct {
	Path      string
	Tiers     int
	Groups    int
	Units     int
	BlockSize int
	Sync      bool
	LogLevel  string
}

func main() {
	opts := parseFlags()

	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}
	log.SetDefaultLogger(log.NewStandardLogger(log.WithOutput(os.Stderr), log.WithLevel(level)))

	base := baseConfig(opts)
	if err := base.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}

	shell := NewShell(base, log.GetDefaultLogger(), os.Stdout)
	if opts.Path != "" {
		if err := shell.Open(opts.Path); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening medium: %s\n", err)
			os.Exit(1)
		}
	}
	defer shell.Close()

	runInteractive(shell)
}

func parseFlags() Options {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "blockdisk - a simulated fixed-block storage medium\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: blockdisk [options] [medium_dir]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Geometry options apply only when a new medium is created.\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nType .help at the prompt for commands.\n")
	}

	defaults := config.NewDefaultConfig("")
	tiers := flag.Int("tiers", defaults.Tiers, "Number of tiers for a new medium")
	groups := flag.Int("groups", defaults.Groups, "Groups per tier for a new medium")
	units := flag.Int("units", defaults.Units, "Units per group for a new medium")
	blockSize := flag.Int("block-size", defaults.BlockSize, "Block size in bytes, including the 4 byte header")
	sync := flag.Bool("sync", false, "Fsync the image after every block write")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error, off")

	flag.Parse()

	var path string
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	return Options{
		Path:      path,
		Tiers:     *tiers,
		Groups:    *groups,
		Units:     *units,
		BlockSize: *blockSize,
		Sync:      *sync,
		LogLevel:  *logLevel,
	}
}

func baseConfig(opts Options) *config.Config {
	cfg := config.NewDefaultConfig(opts.Path)
	cfg.Update(func(c *config.Config) {
		c.Tiers = opts.Tiers
		c.Groups = opts.Groups
		c.Units = opts.Units
		c.BlockSize = opts.BlockSize
		if opts.Sync {
			c.SyncMode = config.SyncImmediate
		}
	})
	return cfg
}

func runInteractive(shell *Shell) {
	fmt.Println("blockdisk version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".blockdisk_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shell.Prompt(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(shell.Prompt())

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if shell.Execute(line) {
			return
		}
	}
}
