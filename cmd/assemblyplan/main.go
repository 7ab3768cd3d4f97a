package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/centraunit/assembly"
	"github.com/centraunit/assembly/config"
	"github.com/centraunit/assembly/manifest"
	"go.uber.org/zap"
)

func main() {
	manifestPath := flag.String("manifest", "assembly.yaml", "Bean manifest to plan")
	envFile := flag.String("env", ".env", "Environment file to load")
	run := flag.Bool("run", false, "Run a full lifetime with stub beans and print the journal")
	flag.Parse()

	if err := plan(os.Stdout, *manifestPath, *envFile, *run); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func plan(out io.Writer, manifestPath, envFile string, run bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	journal := &manifest.Journal{}
	p, err := assembly.NewBuilder(assembly.WithConfig(cfg)).
		Declare(m.Descriptors(journal)...).
		Build()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "dependency order:")
	for i, name := range p.DependencyOrder() {
		fmt.Fprintf(out, "  %d. %s\n", i+1, name)
	}
	fmt.Fprintf(out, "storage slots: %d\n", p.Slots())
	for list := assembly.InitPre; list <= assembly.StopPost; list++ {
		fmt.Fprintf(out, "%s:\n", list)
		for _, op := range p.Operations(list) {
			fmt.Fprintf(out, "  %s.%s\n", op.Bean, op.Callback)
		}
	}
	if !run {
		return nil
	}

	lifetime, err := p.NewLifetime()
	if err != nil {
		return err
	}
	ctx := context.Background()
	startErr := lifetime.StartWithTimeout(ctx, 0)
	if startErr != nil {
		logger.Warn("start failed", zap.String("lifetime", lifetime.ID()), zap.Error(startErr))
	}
	stopErr := lifetime.Stop(ctx, assembly.StopOptions{})

	fmt.Fprintf(out, "journal (lifetime %s, %s):\n", lifetime.ID(), lifetime.State())
	for _, entry := range journal.Entries() {
		fmt.Fprintf(out, "  %s\n", entry)
	}
	if startErr != nil {
		return startErr
	}
	return stopErr
}
