package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func main() {
	text := flag.String("text", "", "Free-text message to classify, e.g. \"paid 20 usd for groceries\"")
	receipt := flag.String("receipt", "", "Path to a receipt photo")
	dryRun := flag.Bool("dry-run", false, "Classify only and print the intent without writing")
	flag.Parse()

	if (*text == "") == (*receipt == "") {
		fmt.Fprintln(os.Stderr, "Usage: ingest (-text MESSAGE | -receipt FILE) [-dry-run]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load config")
	}
	logger.SetLevel(cfg.Log.Level)
	log := logger.NewFromFormat(cfg.Log.Format)

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer a.Close()

	if a.Classifier == nil {
		log.Fatal().Msg("Error: a Gemini API key is required (gemini.api_key or the variable named by gemini.api_key_env)")
	}

	var (
		image    []byte
		mimeType string
	)
	if *receipt != "" {
		image, err = os.ReadFile(*receipt)
		if err != nil {
			log.Fatal().Err(err).Str("file", *receipt).Msg("Failed to read receipt")
		}
		mimeType = http.DetectContentType(image)
		if !strings.HasPrefix(mimeType, "image/") {
			log.Fatal().Str("mime_type", mimeType).Msg("Error: receipt is not an image")
		}
	}

	if *dryRun {
		var intent domain.Intent
		if image != nil {
			intent, err = a.Classifier.ExtractReceipt(ctx, image, mimeType)
		} else {
			intent, err = a.Classifier.ClassifyText(ctx, *text)
		}
		if err != nil {
			log.Fatal().Err(err).Str("detail", domain.UserMessage(err)).Msg("Classification failed")
		}
		printJSON(intent)
		return
	}

	log.Info().Bool("receipt", image != nil).Msg("Starting ingestion")

	var out any
	if image != nil {
		out, err = a.Processor.ApplyReceipt(ctx, image, mimeType)
	} else {
		out, err = a.Processor.ApplyText(ctx, *text)
	}
	if err != nil {
		log.Fatal().Err(err).Str("detail", domain.UserMessage(err)).Msg("Ingestion failed")
	}
	printJSON(out)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		os.Exit(1)
	}
}
