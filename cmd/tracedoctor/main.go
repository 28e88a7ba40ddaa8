// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tracedoctor drains a trace-bridge token stream and runs a
// configurable set of analysis workers over it, writing one or more
// CSV files per worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tracedoctor/host"
	"github.com/tracedoctor/host/analysis"
	"github.com/tracedoctor/host/bridge/replay"
	"github.com/tracedoctor/host/cmd/internal/spinner"
)

var (
	traceFile    string
	outDir       string
	workerList   string
	showSpin     bool
	traceThreads int
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "Drains a captured trace-bridge token stream through a set of\n")
		fmt.Fprintf(flag.CommandLine.Output(), "analysis workers, writing one or more CSV files per worker.\n")
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <trace-capture-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&outDir, "o", ".", "directory to write worker output files to")
	flag.StringVar(&workerList, "workers", "oracle", "comma-separated worker specs: name[:key:value:key:value...]")
	flag.BoolVar(&showSpin, "progress", true, "print a progress spinner while draining the trace")
	flag.IntVar(&traceThreads, "traceThreads", 0, "number of goroutines to spread workers across, round-robin (0 = one goroutine per worker)")
}

func checkFlags() error {
	if flag.NArg() != 1 {
		return errors.New("incorrect number of arguments")
	}
	traceFile = flag.Arg(0)
	if strings.TrimSpace(workerList) == "" {
		return errors.New("-workers must name at least one worker")
	}
	return nil
}

// csvOutputSet implements analysis.OutputSet by creating
// "<dir>/<worker><suffix>.csv" files on demand, so a worker that
// needs more than one output stream (tea_gold needs two) gets
// distinctly-named files without knowing the naming convention.
type csvOutputSet struct {
	dir    string
	worker string
}

func (s csvOutputSet) Create(suffix string) (io.WriteCloser, error) {
	return os.Create(filepath.Join(s.dir, s.worker+suffix+".csv"))
}

// parseWorkerSpec splits one "name[:key:value...]" spec out of the
// -workers flag into a registry name and its key:value argument list.
func parseWorkerSpec(spec string) (name string, args []string, err error) {
	parts := strings.Split(spec, ":")
	name = parts[0]
	rest := parts[1:]
	if len(rest)%2 != 0 {
		return "", nil, fmt.Errorf("worker %q: key:value arguments must come in pairs", spec)
	}
	for i := 0; i < len(rest); i += 2 {
		args = append(args, rest[i]+":"+rest[i+1])
	}
	return name, args, nil
}

func buildWorkers(specs []string) ([]tracedoctor.Worker, error) {
	workers := make([]tracedoctor.Worker, 0, len(specs))
	for _, spec := range specs {
		name, args, err := parseWorkerSpec(spec)
		if err != nil {
			return nil, err
		}
		w, err := analysis.Build(name, args, csvOutputSet{dir: outDir, worker: name})
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func run() error {
	workers, err := buildWorkers(strings.Split(workerList, ","))
	if err != nil {
		return fmt.Errorf("building workers: %w", err)
	}

	b, err := replay.Open(traceFile)
	if err != nil {
		return fmt.Errorf("opening trace capture: %w", err)
	}
	defer b.Close()

	cfg := tracedoctor.DefaultConfig()
	cfg.Logger = log.New(os.Stderr, "tracedoctor: ", log.LstdFlags)
	cfg.TraceThreads = traceThreads
	eng := tracedoctor.NewEngine(cfg, b, workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		cancel()
	}()

	if showSpin {
		spinner.Start(func() float64 {
			// spinner always multiplies by 100 before formatting;
			// undo that so the displayed count is exact.
			return float64(eng.TokensProcessed()) / 100
		}, spinner.Format("Draining trace... %.0f tokens processed"))
		defer spinner.Stop()
	}

	return eng.Run(ctx)
}

func main() {
	flag.Parse()
	if err := checkFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}
