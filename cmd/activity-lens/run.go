package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/activity-lens/activity-lens/internal/buckets"
	"github.com/activity-lens/activity-lens/internal/centroid"
	"github.com/activity-lens/activity-lens/internal/classify"
	"github.com/activity-lens/activity-lens/internal/config"
	"github.com/activity-lens/activity-lens/internal/ocr"
	"github.com/activity-lens/activity-lens/internal/pipeline"
	"github.com/activity-lens/activity-lens/internal/summarize"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the processing stages over all records",
	Long: `Runs OCR, summarization, and classification in order over every record
that still needs them. Complete records are skipped, so re-running after an
interruption or a failure picks up exactly where the last run stopped.

Classification is skipped with a warning when no centroid index has been
built yet, unless --stage classify asks for it explicitly.`,
	RunE: runStages,
}

var (
	runStageNames []string
	runWorkers    int
)

// stageOrder is the canonical execution order; --stage filters it but never
// reorders it.
var stageOrder = []string{pipeline.StageOCR, pipeline.StageSummarize, pipeline.StageClassify}

func init() {
	runCommand.Flags().StringArrayVar(
		&runStageNames,
		"stage",
		nil,
		"Stage to run (ocr, summarize, classify); repeatable, default all",
	)
	runCommand.Flags().IntVar(
		&runWorkers,
		"workers",
		0,
		"Concurrent collaborator calls (default from config)",
	)

	rootCmd.AddCommand(runCommand)
}

func runStages(_ *cobra.Command, _ []string) error {
	selected, err := selectStages(runStageNames)
	if err != nil {
		return err
	}
	explicit := len(runStageNames) > 0

	application, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	stages, err := application.buildStages(ctx, selected, explicit)
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		fmt.Println("Nothing to run.")

		return nil
	}

	workers := runWorkers
	if workers == 0 {
		workers = application.cfg.Pipeline.Workers
	}

	runner := pipeline.NewRunner(application.store, stages, pipeline.Options{
		Workers:   workers,
		SaveBatch: application.cfg.Pipeline.SaveBatch,
	}, application.log)

	runReport, runErr := runner.Run(ctx)
	printRunReport(runReport)

	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}

	return nil
}

func selectStages(names []string) ([]string, error) {
	if len(names) == 0 {
		return stageOrder, nil
	}

	want := make(map[string]bool, len(names))

	for _, name := range names {
		known := false
		for _, stage := range stageOrder {
			if name == stage {
				known = true

				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown stage %q (valid: ocr, summarize, classify)", name)
		}
		want[name] = true
	}

	selected := make([]string, 0, len(want))
	for _, stage := range stageOrder {
		if want[stage] {
			selected = append(selected, stage)
		}
	}

	return selected, nil
}

// buildStages constructs only the collaborators the selected stages need, so
// running just OCR never requires a language model to be reachable.
func (a *app) buildStages(ctx context.Context, selected []string, explicit bool) ([]pipeline.Stage, error) {
	stages := make([]pipeline.Stage, 0, len(selected))

	for _, name := range selected {
		switch name {
		case pipeline.StageOCR:
			processor := ocr.NewProcessor(ocr.TesseractConfig{
				Language:       a.cfg.OCR.Language,
				OEM:            a.cfg.OCR.OEM,
				PSM:            a.cfg.OCR.PSM,
				FallbackPSM:    a.cfg.OCR.FallbackPSM,
				DPI:            a.cfg.OCR.DPI,
				TimeoutSeconds: a.cfg.OCR.TimeoutSeconds,
			}, a.log)

			stages = append(stages, pipeline.NewOCRStage(processor, pipeline.OCRStageConfig{
				CapturesDir: a.cfg.Paths.CapturesDir,
				InlineText:  a.cfg.OCR.InlineText,
			}, a.log))

		case pipeline.StageSummarize:
			summarizer, err := a.summarizer(ctx)
			if err != nil {
				return nil, fmt.Errorf("summarize backend: %w", err)
			}

			stages = append(stages, pipeline.NewSummarizeStage(
				summarizer,
				a.cfg.Paths.CapturesDir,
				a.log,
			))

		case pipeline.StageClassify:
			classifier, err := a.classifier()
			if err != nil {
				if !explicit && errors.Is(err, os.ErrNotExist) {
					a.log.Warn("Classification not set up yet (%v), skipping classify stage", err)

					continue
				}

				return nil, fmt.Errorf("classify stage: %w", err)
			}

			stages = append(stages, pipeline.NewClassifyStage(classifier, pipeline.ClassifyStageConfig{
				CapturesDir:           a.cfg.Paths.CapturesDir,
				AllowMetadataFallback: a.cfg.Classify.AllowMetadataFallback,
			}, a.log))
		}
	}

	return stages, nil
}

// summarizer builds the configured backend, wrapped in the normalized-text
// cache unless disabled.
func (a *app) summarizer(ctx context.Context) (summarize.Summarizer, error) {
	var inner summarize.Summarizer

	switch a.cfg.Summarize.Backend {
	case config.BackendOllama:
		ollamaSummarizer, err := summarize.NewOllamaSummarizer(ctx, a.ollamaClient(), summarize.OllamaConfig{
			Model:             a.cfg.Ollama.Model,
			PreferredModels:   a.cfg.Ollama.PreferredModels,
			Temperature:       a.cfg.Ollama.Temperature,
			NumPredict:        a.cfg.Ollama.NumPredict,
			NumCtx:            a.cfg.Ollama.NumCtx,
			MaxInputChars:     a.cfg.Summarize.MaxInputChars,
			MaxRetries:        a.cfg.Ollama.MaxRetries,
			RetryDelaySeconds: a.cfg.Ollama.RetryDelaySeconds,
			PromptTemplate:    a.cfg.Summarize.PromptTemplate,
		}, a.log)
		if err != nil {
			return nil, err
		}
		inner = ollamaSummarizer

	case config.BackendGemini:
		apiKey := a.cfg.GetAPIKey()
		if apiKey == "" {
			return nil, fmt.Errorf(
				"%w: set %s",
				summarize.ErrAPIKeyRequired,
				a.cfg.Gemini.APIKeyVariable,
			)
		}

		geminiSummarizer, err := summarize.NewGeminiSummarizer(ctx, summarize.GeminiConfig{
			APIKey:            apiKey,
			Models:            a.cfg.Gemini.Models,
			Temperature:       a.cfg.Gemini.Temperature,
			MaxTokens:         a.cfg.Gemini.MaxTokens,
			MaxInputChars:     a.cfg.Summarize.MaxInputChars,
			MaxRetries:        a.cfg.Gemini.MaxRetries,
			RetryDelaySeconds: a.cfg.Gemini.RetryDelaySeconds,
			PromptTemplate:    a.cfg.Summarize.PromptTemplate,
		}, a.log)
		if err != nil {
			return nil, err
		}
		inner = geminiSummarizer

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, a.cfg.Summarize.Backend)
	}

	if a.cfg.Summarize.DisableCache {
		return inner, nil
	}

	cache, err := summarize.OpenCache(a.cfg.SummaryCachePath(), a.log)
	if err != nil {
		return nil, fmt.Errorf("open summary cache: %w", err)
	}

	return summarize.NewCachingSummarizer(inner, cache, a.log), nil
}

// classifier loads the persisted centroid pair and verifies it against the
// current bucket file and embedding model.
func (a *app) classifier() (*classify.Classifier, error) {
	bucketsConfig, err := buckets.Load(a.cfg.Paths.BucketsFile)
	if err != nil {
		return nil, fmt.Errorf("load bucket definitions: %w", err)
	}

	_, index, err := centroid.LoadPair(a.cfg.CentroidSetPath(), a.cfg.CentroidIndexPath())
	if err != nil {
		return nil, err
	}

	embedder := a.embedder()

	return classify.New(embedder, index, classify.Config{
		Threshold:             a.cfg.Classify.Threshold,
		AllowMetadataFallback: a.cfg.Classify.AllowMetadataFallback,
		Fingerprint:           bucketsConfig.Fingerprint(embedder.Model()),
	}, a.log)
}

func printRunReport(runReport *pipeline.Report) {
	if runReport == nil {
		return
	}

	fmt.Printf(
		"Run %s finished in %s\n",
		runReport.RunID,
		runReport.Finished.Sub(runReport.Started).Round(time.Millisecond),
	)

	for _, stats := range runReport.Stages {
		fmt.Printf(
			"  %-10s %d processed, %d skipped, %d failed\n",
			stats.Stage,
			stats.Processed,
			stats.Skipped,
			stats.Failed,
		)
	}

	if len(runReport.Failures) == 0 {
		return
	}

	fmt.Println("Failures:")

	for _, failure := range runReport.Failures {
		fmt.Printf("  [%s] %s: %v\n", failure.Stage, failure.RecordID, failure.Err)
	}
}
