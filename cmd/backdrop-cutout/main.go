package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"backdrop-cutout/internal/batch"
	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/debug/timing"
	"backdrop-cutout/internal/logger"
	"backdrop-cutout/internal/pipeline"
	"backdrop-cutout/internal/shutdown"
	"backdrop-cutout/internal/system"
)

const (
	AppName    = "backdrop-cutout"
	AppVersion = "1.0.0"
)

type options struct {
	configPath   string
	writeConfig  string
	strategy     string
	input        string
	output       string
	recursive    bool
	workers      int
	suffix       string
	skipExisting bool
	solver       string
	iterations   int
	debugDir     string
	memoryMB     int
	logLevel     string
	logJSON      bool
	version      bool
}

func parseFlags(args []string) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", "", "YAML config file overlaid on the preset")
	fs.StringVar(&opts.writeConfig, "write-config", "", "write the resolved config to this path and exit")
	fs.StringVar(&opts.strategy, "strategy", "", "trimap preset: flood-fill or tonal (default from config, else flood-fill)")
	fs.StringVar(&opts.input, "input", "", "input file or directory")
	fs.StringVar(&opts.output, "output", "", "output directory")
	fs.BoolVar(&opts.recursive, "recursive", false, "descend into subdirectories of the input")
	fs.IntVar(&opts.workers, "workers", 0, "images processed at once (0 sizes the pool to the host)")
	fs.StringVar(&opts.suffix, "suffix", "", "appended to each output file name before .png")
	fs.BoolVar(&opts.skipExisting, "skip-existing", false, "leave inputs whose output already exists")
	fs.StringVar(&opts.solver, "solver", "", "segmentation solver: grabcut or labels")
	fs.IntVar(&opts.iterations, "iterations", 0, "solver iterations")
	fs.StringVar(&opts.debugDir, "debug-dir", "", "also write trimap visualisations here")
	fs.IntVar(&opts.memoryMB, "memory-limit-mb", 0, "per-image OpenCV allocation cap in MiB (0 keeps the default)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&opts.logJSON, "log-json", false, "log JSON lines instead of console output")
	fs.BoolVar(&opts.version, "version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, fs, nil
}

// resolveConfig loads the preset and config file, then applies the flags
// that were given explicitly.
func resolveConfig(opts *options, fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, config.Strategy(opts.strategy))
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Batch.Input = opts.input
		case "output":
			cfg.Batch.Output = opts.output
		case "recursive":
			cfg.Batch.Recursive = opts.recursive
		case "workers":
			cfg.Batch.Workers = opts.workers
		case "suffix":
			cfg.Batch.Suffix = opts.suffix
		case "skip-existing":
			cfg.Batch.SkipExisting = opts.skipExisting
		case "debug-dir":
			cfg.Batch.DebugDir = opts.debugDir
		case "memory-limit-mb":
			cfg.Batch.MemoryLimitMB = opts.memoryMB
		case "solver":
			cfg.Solver.Kind = config.SolverKind(opts.solver)
		case "iterations":
			cfg.Solver.Iterations = opts.iterations
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, fs, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if opts.version {
		fmt.Printf("%s %s (%s)\n", AppName, AppVersion, runtime.Version())
		return 0
	}

	level, err := logger.ParseLevel(opts.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	log := logger.New(level, opts.logJSON)

	cfg, err := resolveConfig(opts, fs)
	if err != nil {
		log.Error("Main", err, nil)
		return 2
	}

	if opts.writeConfig != "" {
		if err := config.Write(cfg, opts.writeConfig); err != nil {
			log.Error("Main", err, map[string]interface{}{"path": opts.writeConfig})
			return 1
		}
		log.Info("Main", "config written", map[string]interface{}{"path": opts.writeConfig})
		return 0
	}

	configureRuntime(log)

	manager := shutdown.NewManager(context.Background(), log)
	manager.Listen()
	defer manager.Shutdown()

	tracker := timing.NewTracker()
	processor, err := pipeline.NewProcessor(cfg, nil, log, tracker)
	if err != nil {
		log.Error("Main", err, nil)
		return 2
	}

	inputs, err := batch.Discover(cfg.Batch.Input, cfg.Batch.Recursive, cfg.Batch.Output, cfg.Batch.DebugDir)
	if err != nil {
		log.Error("Main", err, nil)
		return 1
	}
	if len(inputs) == 0 {
		log.Warning("Main", "no images found", map[string]interface{}{"input": cfg.Batch.Input})
		return 0
	}

	runOpts := batch.OptionsFrom(cfg.Batch)
	runOpts.InputRoot = batch.InputRoot(cfg.Batch.Input)

	runner := batch.NewRunner(runOpts, processor, log, tracker)
	manager.Register(runner)

	report := runner.Run(manager.Context(), inputs)
	report.Log(log)

	if report.Failed() {
		return 1
	}
	return 0
}

// configureRuntime tunes the GC for large short-lived image buffers and,
// unless GOMEMLIMIT is set, caps the heap below the host's free memory.
func configureRuntime(log logger.Logger) {
	debug.SetGCPercent(200)

	host := system.Probe()
	limit := int64(-1)
	if os.Getenv("GOMEMLIMIT") == "" && host.AvailableMemory > 0 {
		limit = int64(host.AvailableMemory / 4 * 3)
		debug.SetMemoryLimit(limit)
	}

	log.Debug("Main", "runtime configured", map[string]interface{}{
		"gomaxprocs":   runtime.GOMAXPROCS(0),
		"logical_cpus": host.LogicalCPUs,
		"gc_percent":   200,
		"memory_limit": limit,
	})
}
