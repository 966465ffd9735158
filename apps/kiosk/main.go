package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/hazira/core"
	logsvc "github.com/trezcool/hazira/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "KIOSK : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("starting kiosk: %v", err), err)
	}

	cli := commandLine{app: a, out: os.Stdout}
	err = cli.run(ctx, os.Args)
	a.close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		}
		os.Exit(1)
	}
}
