// Command trackerctl runs one build-tracking session: normalize targets,
// construct a build map, materialize the artifact tree, and either exit
// (single-shot mode) or watch the search roots for incremental updates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"buildtrack/internal/buildinterface"
	"buildtrack/internal/builder"
	"buildtrack/internal/buildtool"
	"buildtrack/internal/config"
	"buildtrack/internal/modulepath"
	"buildtrack/internal/moduletracker"
	"buildtrack/internal/progress"
	"buildtrack/internal/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "buildtrack.yaml", "Path to the YAML config file")
	artifactRoot := flag.String("artifact-root", "", "Override the configured artifact root")
	buildCommand := flag.String("build-command", "", "Override the configured build tool command")
	lazy := flag.Bool("lazy", false, "Use lazy module discovery and build-map construction")
	verbose := flag.Bool("verbose", false, "Print detailed progress")
	watchMode := flag.Bool("watch", false, "Keep running, applying incremental updates as files change")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: trackerctl [flags] <target-pattern...>\n\nWith -lazy, positional arguments are source paths (the working set)\nrather than target patterns.\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return fmt.Errorf("expected at least one target pattern")
	}
	patterns := flag.Args()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg = config.ApplyFlagOverrides(cfg, artifactRoot, buildCommand, lazy, verbose)

	prog := progress.New(cfg.Verbose)

	roots := make([]modulepath.SearchRoot, len(cfg.SearchRoots))
	for i, r := range cfg.SearchRoots {
		abs, err := filepath.Abs(r.Dir)
		if err != nil {
			return fmt.Errorf("invalid search root %q: %w", r.Dir, err)
		}
		roots[i] = modulepath.SearchRoot{Index: i, Dir: abs, SkipTypeCheck: r.NoTypeCheck}
	}
	if len(roots) == 0 {
		return fmt.Errorf("config names no search_roots")
	}
	finder := &modulepath.Finder{Roots: roots}

	version := buildinterface.Version(cfg.BuildToolVersion)
	if version != buildinterface.V1 && version != buildinterface.V2 {
		return fmt.Errorf("unsupported build_tool_version %d", cfg.BuildToolVersion)
	}
	tool := buildtool.New(cfg.BuildCommand, cfg.BuildToolLog)
	bi := buildinterface.New(tool, version, prog)

	artifactRootAbs, err := filepath.Abs(cfg.ArtifactRoot)
	if err != nil {
		return fmt.Errorf("invalid artifact root %q: %w", cfg.ArtifactRoot, err)
	}

	readContent := func(path string) ([]byte, error) { return os.ReadFile(path) }
	b := builder.New(bi, roots[0].Dir, artifactRootAbs, roots, prog, readContent)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Lazy {
		workingSet := make([]string, len(patterns))
		for i, p := range patterns {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("invalid working-set path %q: %w", p, err)
			}
			workingSet[i] = abs
		}
		result, err := b.Lazy(ctx, workingSet, buildtool.Options{})
		if err != nil {
			return err
		}
		prog.Log("lazy build complete: %s artifact events", progress.Count(result.Events.Len()))
	} else {
		result, err := b.FullIncremental(ctx, patterns, buildtool.Options{})
		if err != nil {
			return err
		}
		prog.Log("initial build complete: %s targets, %s artifact events", progress.Count(len(result.SurvivingTargets)), progress.Count(result.Events.Len()))
	}

	var tracker *moduletracker.ModuleTracker
	if cfg.Lazy {
		tracker = moduletracker.NewLazyTracker(modulepath.NewLazyFinder(finder), nil)
	} else {
		ef, err := modulepath.NewEagerFinder(finder)
		if err != nil {
			return err
		}
		tracker = moduletracker.NewEagerTracker(ef, nil)
	}

	if !*watchMode {
		return nil
	}

	w, err := watch.New(finder)
	if err != nil {
		return err
	}
	defer w.Close()
	go w.Run()

	prog.Log("watching %d search root(s) for changes", len(roots))
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events:
			if !ok {
				return nil
			}
			updates := tracker.ApplyEvents(batch)
			prog.Verbose("applied %d filesystem event(s), %d module update(s)", len(batch), len(updates))
		case werr, ok := <-w.Errors:
			if !ok {
				continue
			}
			prog.Log("watch error: %v", werr)
		}
	}
}
