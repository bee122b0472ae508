package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trackify/internal/app"
)

const usage = `usage: trackify [-config path] [command]

commands:
  run      run the scheduler and status server until interrupted (default)
  probe    run one measurement cycle and print the snapshot
  cached   print the cached snapshot
  summary  print today's aggregate
  stats    print rolling stats (-window, default 24h)
`

func main() {
	var cfgPath string
	var window time.Duration
	flag.StringVar(&cfgPath, "config", "./trackify.json", "path to config json or yaml")
	flag.DurationVar(&window, "window", 24*time.Hour, "stats window")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if cmd == "run" {
		os.Exit(run(a))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err = oneShot(ctx, a, cmd, window)
	_ = a.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(a *app.App) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		return 1
	}
	notifyReady()
	go watchdog(ctx)

	reason := app.StopUnknown
	code := 0
	select {
	case sig := <-sigCh:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			code = 1
		}
	}

	notifyStopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return code
}

func oneShot(ctx context.Context, a *app.App, cmd string, window time.Duration) error {
	mon := a.Monitor()
	switch cmd {
	case "probe":
		snap, err := mon.CurrentNetworkInfo(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap)
	case "cached":
		snap, err := mon.CachedData(ctx)
		if err != nil {
			return err
		}
		if snap == nil {
			return errors.New("no cached data")
		}
		return printJSON(snap)
	case "summary":
		agg, ok := mon.LogDailySummary(ctx)
		if !ok {
			return errors.New("no network data for today")
		}
		return printJSON(agg)
	case "stats":
		return printJSON(mon.Stats(ctx, window, window.String()))
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

