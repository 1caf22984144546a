package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun"
	"git.unix.lgbt/diamondburned/bgrun/bgrun/client"
	"git.unix.lgbt/diamondburned/bgrun/bgrun/config"
	"git.unix.lgbt/diamondburned/bgrun/bgrun/journal"
	"git.unix.lgbt/diamondburned/bgrun/bgrun/wire"
	"github.com/pkg/errors"
)

var (
	cfg config.Config

	daemonMode    bool
	force         bool
	ignoreRunning bool
	listRunning   bool
	logFile       string
	history       int
)

func init() {
	var err error

	cfg, err = config.Load(config.DefaultPath())
	if err != nil {
		log.Fatalln(err)
	}

	flag.BoolVar(&daemonMode, "d", false, "run the daemon")
	flag.BoolVar(&force, "f", false, "remove a stale socket file before listening")
	flag.BoolVar(&ignoreRunning, "i", false, "leave running commands alive when the daemon stops")
	flag.DurationVar(&cfg.StopGrace, "grace", cfg.StopGrace, "time between SIGTERM and SIGKILL on shutdown")
	flag.StringVar(&cfg.JournalPath, "j", cfg.JournalPath, "journal file path")
	flag.StringVar(&cfg.StatusAddr, "status", cfg.StatusAddr, "HTTP status server address")
	flag.StringVar(&cfg.SocketPath, "s", cfg.SocketPath, "socket path")
	flag.StringVar(&logFile, "l", "", "file to write the command's output to")
	flag.BoolVar(&listRunning, "r", false, "list running commands")
	flag.IntVar(&history, "history", 0, "print the last N journal events")
	flag.Usage = func() {
		f := func(f string, v ...interface{}) {
			fmt.Fprintf(flag.CommandLine.Output(), f, v...)
		}

		name := filepath.Base(os.Args[0])

		f("Usage:\n")
		f("  %s -d [-f] [-i] [-grace 0s] [-j journal] [-status addr]\n", name)
		f("  %s [-l logfile] <command> [args...]\n", name)
		f("  %s -r\n", name)
		f("  %s -history N -j journal\n", name)
		f("\n")
		f("Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if cfg.SocketPath == "" {
		log.Fatalf("missing -s socket path and $%s is not set\n", config.SocketEnv)
	}
}

func main() {
	var err error

	switch {
	case daemonMode:
		err = daemon()
	case listRunning:
		err = running()
	case history > 0:
		err = printHistory()
	case flag.NArg() > 0:
		err = run()
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalln(err)
	}
}

func daemon() error {
	var journaler bgrun.Journaler = journal.NewHumanWriter(os.Stderr)

	if cfg.JournalPath != "" {
		j, err := journal.NewFileLockJournaler(cfg.JournalPath)
		if err != nil {
			if errors.Is(err, journal.ErrLockedElsewhere) {
				return errors.New("journal is used by another daemon")
			}
			return errors.Wrap(err, "failed to acquire journal lock")
		}
		defer j.Close()

		journaler = journal.MultiWriter(j, journaler)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := bgrun.NewPrometheusMetricsCollector("")

	d, err := bgrun.Listen(bgrun.DaemonOpts{
		SocketPath:      cfg.SocketPath,
		Force:           force,
		IgnoreRunning:   ignoreRunning,
		WatchSocket:     true,
		ReadTimeout:     cfg.ReadTimeout,
		StopGrace:       cfg.StopGrace,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Metrics:         metrics,
	}, journaler)
	if err != nil {
		return errors.Wrap(err, "failed to start daemon")
	}

	if cfg.StatusAddr != "" {
		srv := &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           bgrun.NewStatusHandler(d.Registry(), metrics.Registry()),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				journaler.Write(&bgrun.EventWarning{
					Component: "status",
					Error:     err.Error(),
				})
			}
		}()

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	return d.Serve(ctx)
}

func clientContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func run() error {
	ctx, cancel := clientContext()
	defer cancel()

	if logFile != "" {
		// The daemon opens the log file from its own working directory.
		abs, err := filepath.Abs(logFile)
		if err != nil {
			return errors.Wrap(err, "invalid log file path")
		}
		logFile = abs
	}

	pid, err := client.New(cfg.SocketPath).Run(ctx, flag.Arg(0), flag.Args()[1:], logFile)
	if err != nil {
		if errors.Is(err, client.ErrNoReply) {
			return errors.New("daemon failed to start the command, see its journal")
		}
		return err
	}

	fmt.Println(pid)
	return nil
}

func running() error {
	ctx, cancel := clientContext()
	defer cancel()

	b, err := client.New(cfg.SocketPath).Do(ctx, wire.RunningRequest{})
	if err != nil {
		return err
	}

	fmt.Println(string(b))
	return nil
}

func printHistory() error {
	if cfg.JournalPath == "" {
		return errors.New("missing -j path to journal file")
	}

	entries, err := journal.ReadLast(cfg.JournalPath, history)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		fmt.Println(entry.Time.Local().Format(time.DateTime), journal.FormatEvent(entry.Event))
	}

	return nil
}
