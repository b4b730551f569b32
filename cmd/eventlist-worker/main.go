// eventlist-worker is the per-job program the batch scheduler runs on
// a cluster node. It reads its assignment from the environment the
// submitter set: FILE names the run file, EVENTLIST_CONFIG the config,
// and a non-empty OUT_FILE switches output from the database to a CSV
// file under the configured data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fact-project/eventlist/internal/config"
	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/internal/logging"
	"github.com/fact-project/eventlist/internal/processor"
)

func main() {
	file := flag.String("file", "", "Run file to process (default: $FILE)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		*logLevel = "debug"
	}
	logger := logging.NewLogger(logging.ParseLevel(*logLevel), *logFormat)

	path := *file
	if path == "" {
		path = os.Getenv("FILE")
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no input file: pass --file or set FILE")
		os.Exit(1)
	}

	cfgPath, err := config.Resolve("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := ledger.Open(cfg.ProcessingDatabase.Path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open processing database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate processing database: %v\n", err)
		os.Exit(1)
	}

	opts := processor.Options{}
	if os.Getenv("OUT_FILE") != "" {
		base := filepath.Base(path)
		opts.OutFile = filepath.Join(cfg.Submitter.DataDirectory, "output", base+".csv")
	}

	logger.Info("worker starting", "file", path, "out_file", opts.OutFile)

	p := processor.New(st, cfg.Reader.Command, logger)
	if err := p.ProcessFile(ctx, path, opts); err != nil {
		fmt.Fprintf(os.Stderr, "process %s: %v\n", path, err)
		os.Exit(1)
	}

	logger.Info("worker finished")
}
