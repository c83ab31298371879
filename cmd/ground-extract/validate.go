// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ground-extract/internal/align"
	"github.com/pdiddy/ground-extract/internal/validate"
	"github.com/pdiddy/ground-extract/pkg/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate [examples.jsonl]",
	Short: "Pre-flight a few-shot example file through the Aligner",
	Long: `Validate tokenizes and aligns every extraction in a JSON Lines file of
ExampleRecords, printing a report of how each one aligned. Run this before
spending an LLM call to catch mistyped or paraphrased example extractions.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("json", false, "print the raw ValidationReport as JSON instead of a table")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	examples, err := readExamples(args[0])
	if err != nil {
		return err
	}
	if len(examples) == 0 {
		return fmt.Errorf("no examples found in %s", args[0])
	}

	cfg := pipelineConfigFromViper()
	alignOpts := align.Options{
		FuzzyThreshold:  cfg.FuzzyThreshold,
		LesserThreshold: cfg.LesserThreshold,
		AcceptLesser:    cfg.AcceptLesser,
		FuzzySlack:      cfg.FuzzySlack,
		AttributeSuffix: cfg.AttributeSuffix,
	}

	report := validate.Validate(examples, alignOpts)

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printValidationReport(report)

	if report.Failed(cfg.ValidationLevel) {
		return fmt.Errorf("one or more examples are UNALIGNED at validation_level=%s", cfg.ValidationLevel)
	}
	return nil
}

func printValidationReport(report types.ValidationReport) {
	fmt.Fprintf(os.Stdout, "%-8s  %-8s  %-10s  %s\n", "example", "extract.", "status", "reason")
	for _, e := range report.Entries {
		fmt.Fprintf(os.Stdout, "%-8d  %-8d  %-10s  %s\n", e.ExampleIndex, e.ExtractionIndex, e.Status, e.Reason)
	}
}
