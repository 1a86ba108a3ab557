package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"trendpipe/internal/app"
)

func main() {
	var (
		cfgPath string
		once    bool
		refresh bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.BoolVar(&once, "once", false, "run one content cycle and exit")
	flag.BoolVar(&refresh, "refresh-hashtags", false, "run the hashtag refresh and exit")
	flag.Parse()

	// Secrets (credentials, API keys) come from the environment; .env is a
	// convenience for local runs and absent in production.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if once || refresh {
		var runErr error
		if refresh {
			runErr = a.RefreshHashtags(ctx)
		} else {
			runErr = a.RunContentCycle(ctx)
		}
		_ = a.Stop(context.Background())
		if runErr != nil {
			fmt.Fprintln(os.Stderr, "run failed:", runErr)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	_ = a.Stop(context.Background())
}
