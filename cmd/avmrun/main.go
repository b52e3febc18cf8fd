// avmrun - runs raw AVM1 action blocks through the player frame loop
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/avmcore/backend"
	"github.com/chazu/avmcore/config"
	"github.com/chazu/avmcore/player"
)

func main() {
	configPath := flag.String("config", "", "Path to avmcore.toml (default: search upward from the first input)")
	frames := flag.Int("frames", 1, "Number of frames to run (0 runs until interrupted)")
	verbosity := flag.Int("v", -1, "Log verbosity (overrides the config file)")
	logFile := flag.String("log", "", "Log file (default: stderr)")
	sockets := flag.Bool("ws", false, "Carry XMLSocket connections over WebSockets")
	storage := flag.String("storage", "", "SharedObject database path (overrides the config file)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: avmrun [options] actions...\n\n")
		fmt.Fprintf(os.Stderr, "Queues each file of AVM1 action bytes on the first frame and runs the player.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  avmrun frame1.bin                 # Run one frame\n")
		fmt.Fprintf(os.Stderr, "  avmrun -frames 0 -ws chat.bin     # Run until interrupted, sockets over ws://\n")
		fmt.Fprintf(os.Stderr, "  avmrun -storage so.db save.bin    # Persist SharedObjects in sqlite\n")
	}
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath, paths[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *storage != "" {
		cfg.Storage.Path = *storage
	}
	configureLogging(cfg)

	var backends backend.Backends
	if *sockets {
		backends.Navigator = backend.NewWebSocketNavigator()
	}

	p, err := player.New(player.Options{
		Config:    cfg,
		Backends:  backends,
		TraceHook: func(s string) { fmt.Println(s) },
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	for _, path := range paths {
		code, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		p.QueueActions(nil, code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := p.Run(ctx, *frames); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads an explicit config file, or searches upward from the
// directory of the first input.
func loadConfig(path, firstInput string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(filepath.Dir(firstInput))
}

func configureLogging(cfg *config.Config) {
	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, path)
}
