// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ground-extract/internal/pipeline"
	"github.com/pdiddy/ground-extract/internal/provider"
	"github.com/pdiddy/ground-extract/internal/store"
	"github.com/pdiddy/ground-extract/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [documents.jsonl]",
	Short: "Extract and ground structured data from a batch of documents",
	Long: `Run reads a JSON Lines file of Documents (one {"id", "text"} object per
line), extracts and aligns structured data from each, and writes one
AnnotatedDocument JSON object per line to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("examples", "", "path to a JSON Lines file of few-shot ExampleRecords")
	runCmd.Flags().String("task", "Extract the structured entities described by the examples.", "task description injected into every prompt")
	runCmd.Flags().String("cache-db", "", "path to a SQLite cache database (empty disables caching)")
	runCmd.Flags().String("model", "", "inference model identifier")
	runCmd.Flags().String("base-url", "https://api.anthropic.com/v1/messages", "inference HTTP endpoint")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfigFromViper()

	examplesPath, _ := cmd.Flags().GetString("examples")
	examples, err := readExamples(examplesPath)
	if err != nil {
		return err
	}

	taskDescription, _ := cmd.Flags().GetString("task")
	model, _ := cmd.Flags().GetString("model")
	baseURL, _ := cmd.Flags().GetString("base-url")

	infer := &provider.HTTPInference{
		BaseURL:    baseURL,
		APIKey:     secretDefault("inference-api-key", viper.GetString("inference_api_key")),
		Model:      model,
		Client:     &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second},
		MaxRetries: 5,
	}

	p := pipeline.New(infer, provider.StaticSchemaAdapter{}, cfg, taskDescription)

	cacheDB, _ := cmd.Flags().GetString("cache-db")
	if cacheDB != "" {
		cache, err := store.Open(cacheDB)
		if err != nil {
			return fmt.Errorf("opening cache database: %w", err)
		}
		defer cache.Close()
		p.Cache = cache
	}

	docs, err := readDocuments(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	ctx := context.Background()

	var failures int
	for _, doc := range docs {
		out, err := p.Run(ctx, doc, examples)
		if err != nil {
			fmt.Fprintf(os.Stderr, "document %s: %v\n", doc.ID, err)
			failures++
			continue
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("writing output for document %s: %w", doc.ID, err)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failures, len(docs))
	}
	return nil
}

func pipelineConfigFromViper() types.PipelineConfig {
	cfg := types.NewDefaultPipelineConfig()

	if viper.IsSet("max_char_buffer") {
		cfg.MaxCharBuffer = viper.GetInt("max_char_buffer")
	}
	if viper.IsSet("extraction_passes") {
		cfg.ExtractionPasses = viper.GetInt("extraction_passes")
	}
	if viper.IsSet("max_workers") {
		cfg.MaxWorkers = viper.GetInt("max_workers")
	}
	if viper.IsSet("fuzzy_threshold") {
		cfg.FuzzyThreshold = viper.GetFloat64("fuzzy_threshold")
	}
	if viper.IsSet("lesser_threshold") {
		cfg.LesserThreshold = viper.GetFloat64("lesser_threshold")
	}
	if viper.IsSet("accept_lesser") {
		cfg.AcceptLesser = viper.GetBool("accept_lesser")
	}
	if viper.IsSet("fuzzy_slack") {
		cfg.FuzzySlack = viper.GetFloat64("fuzzy_slack")
	}
	if viper.IsSet("context_window_chars") {
		cfg.ContextWindowChars = viper.GetInt("context_window_chars")
	}
	if viper.IsSet("validation_level") {
		cfg.ValidationLevel = types.ValidationLevel(viper.GetString("validation_level"))
	}
	if viper.IsSet("max_retries") {
		cfg.MaxRetries = viper.GetInt("max_retries")
	}
	if viper.IsSet("request_timeout") {
		cfg.RequestTimeoutSeconds = viper.GetInt("request_timeout")
	}
	if viper.IsSet("wrapper_key") {
		cfg.WrapperKey = viper.GetString("wrapper_key")
	}
	if viper.IsSet("attribute_suffix") {
		cfg.AttributeSuffix = viper.GetString("attribute_suffix")
	}

	return cfg
}

func readDocuments(path string) ([]types.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening documents file %s: %w", path, err)
	}
	defer f.Close()

	var docs []types.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc types.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			return nil, fmt.Errorf("parsing document line: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading documents file %s: %w", path, err)
	}
	return docs, nil
}

func readExamples(path string) ([]types.ExampleRecord, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening examples file %s: %w", path, err)
	}
	defer f.Close()

	var examples []types.ExampleRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ex types.ExampleRecord
		if err := json.Unmarshal(line, &ex); err != nil {
			return nil, fmt.Errorf("parsing example line: %w", err)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading examples file %s: %w", path, err)
	}
	return examples, nil
}
