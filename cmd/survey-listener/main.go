package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"surveyboard/internal"
	"surveyboard/internal/config"
	"surveyboard/internal/listener"
	"surveyboard/internal/pipeline"
	"surveyboard/internal/storage"
	"surveyboard/internal/survey"
)

func main() {
	cfg, err := config.Load()
	must(err)
	internal.DefaultLogger.SetLevel(internal.ParseLogLevel(cfg.LogLevel))

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	surveyCfg, err := survey.Load(cfg.SurveyConfigPath)
	must(err)

	processor := pipeline.NewProcessingService(db, cfg, nil, surveyCfg)
	svc := listener.NewService(db, cfg, processor)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
