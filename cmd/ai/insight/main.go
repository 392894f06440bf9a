// Package main provides a CLI command for one insight request.
// Usage: langcard-insight [--action define] [--note note.json] [--field Word] [--output json] "selection"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"langcard-insight/internal/config"
	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/infra/generator"
	"langcard-insight/internal/observability/logging"
	"langcard-insight/internal/usecase/insight"
)

func main() {
	var (
		actionName   string
		notePath     string
		currentField string
		noteType     string
		outputFormat string
		timeout      time.Duration
	)

	flag.StringVar(&actionName, "action", "define", "Action: define, explain, translate, grammar or context")
	flag.StringVar(&notePath, "note", "", "Path to a note JSON file ({\"type\", \"fields\": [{\"name\", \"value\"}]})")
	flag.StringVar(&currentField, "field", "", "Field the selection was made in (default: first field)")
	flag.StringVar(&noteType, "type", string(entity.NoteTypeBasic), "Note type when --note is not given")
	flag.StringVar(&outputFormat, "output", "text", "Output format: text or json")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "Overall timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: Selected text is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: langcard-insight [--action define] [--note note.json] [--field Word] [--output json] \"selection\"")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  langcard-insight \"食べる\"")
		fmt.Fprintln(os.Stderr, "  langcard-insight --action grammar --note card.json --field Sentence \"食べられる\"")
		fmt.Fprintln(os.Stderr, "  langcard-insight --action translate --output json \"serendipity\"")
		os.Exit(1)
	}
	selection := strings.Join(args, " ")

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	action, err := entity.ParseAction(actionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	note, err := loadNote(notePath, entity.NoteType(noteType), selection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read note: %v\n", err)
		os.Exit(1)
	}
	if currentField == "" && len(note.Fields) > 0 {
		currentField = note.Fields[0].Name
	}

	aiConfig, err := config.LoadAIConfig()
	if err != nil {
		logger.Error("failed to load AI configuration", slog.Any("error", err))
		fmt.Fprintf(os.Stderr, "Error: Failed to load AI configuration: %v\n", err)
		os.Exit(1)
	}

	ctxOpts := insight.DefaultContextOptions()
	ctxOpts.MaxFieldChars = aiConfig.Context.MaxFieldChars
	ctxOpts.MaxTotalChars = aiConfig.Context.MaxTotalChars
	noteCtx, err := insight.BuildContext(note, currentField, selection, ctxOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", insight.UserMessage(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	provider, err := generator.New(ctx, aiConfig, generator.NoopGenerationMetrics{}, logger)
	if err != nil {
		logger.Error("failed to create AI backend", slog.Any("error", err))
		fmt.Fprintf(os.Stderr, "Error: Failed to create AI backend: %v\n", err)
		os.Exit(1)
	}
	if closer, ok := provider.(io.Closer); ok {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				logger.Error("failed to close AI backend", slog.Any("error", closeErr))
			}
		}()
	}

	svc, err := insight.NewService(ctx, provider, insight.Config{
		MaxRetries: aiConfig.Retry.MaxRetries,
		Timeout:    aiConfig.Retry.Timeout,
		RetryDelay: aiConfig.Retry.Delay,
	}, insight.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("requesting insight",
		slog.String("action", string(action)),
		slog.String("backend", svc.Backend()),
		slog.Bool("available", svc.Available()))

	resp, err := svc.Request(ctx, action, selection, noteCtx)
	if err != nil {
		logger.Error("insight request failed", slog.Any("error", err))
		fmt.Fprintf(os.Stderr, "Error: %s\n", insight.UserMessage(err))
		os.Exit(1)
	}

	if outputFormat == "json" {
		outputJSON(resp)
	} else {
		outputText(resp)
	}
}

// loadNote reads a note file, or wraps the selection in a one-field note.
func loadNote(path string, noteType entity.NoteType, selection string) (insight.Note, error) {
	if path == "" {
		return insight.Note{
			Type:   noteType,
			Fields: []insight.NoteField{{Name: "Text", Value: selection}},
		}, nil
	}

	// #nosec G304 -- path is given by the user running the command
	data, err := os.ReadFile(path)
	if err != nil {
		return insight.Note{}, err
	}
	var note insight.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return insight.Note{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if note.Type == "" {
		note.Type = noteType
	}
	return note, nil
}

// outputText prints the insight in human-readable format.
func outputText(resp *entity.InsightResponse) {
	fmt.Printf("%s: %s\n\n", strings.ToUpper(string(resp.Action)), resp.SelectedText)
	fmt.Printf("%s\n", resp.Insight)

	if len(resp.Examples) > 0 {
		fmt.Printf("\nExamples:\n")
		for i, ex := range resp.Examples {
			fmt.Printf("%d. %s\n", i+1, ex)
		}
	}
	if resp.Suggestion != "" {
		fmt.Printf("\nSuggestion: %s\n", resp.Suggestion)
	}
	if resp.Confidence != nil {
		fmt.Printf("\nConfidence: %.0f%%\n", *resp.Confidence*100)
	}
	fmt.Printf("Source: %s\n", resp.Source)
}

// outputJSON prints the response as indented JSON.
func outputJSON(resp *entity.InsightResponse) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}
