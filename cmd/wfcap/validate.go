package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/workforce-capacity/internal/config"
	"github.com/jonathan/workforce-capacity/internal/schemas"
	schemafiles "github.com/jonathan/workforce-capacity/schemas"
)

var validateCommand = &cobra.Command{
	Use:   "validate",
	Short: "Validate a JSON document against a JSON Schema",
	Long: `Validates a JSON file against a schema. --schema is either a schema file path or the name of a
built-in schema (quality_report, cleaning_rules).`,
	RunE: runValidate,
}

var validateConfigCommand = &cobra.Command{
	Use:   "validate-config",
	Short: "Check a run descriptor without running the pipeline",
	RunE:  runValidateConfig,
}

var (
	validateSchema string
	validateJSON   string
	validateConfig string
)

func init() {
	validateCommand.Flags().StringVar(&validateSchema, "schema", "", "Schema file path or built-in schema name")
	validateCommand.Flags().StringVar(&validateJSON, "json", "", "Path to the JSON document")
	_ = validateCommand.MarkFlagRequired("schema")
	_ = validateCommand.MarkFlagRequired("json")

	validateConfigCommand.Flags().StringVarP(&validateConfig, "config", "c", "", "Path to the run descriptor")
	_ = validateConfigCommand.MarkFlagRequired("config")

	rootCmd.AddCommand(validateCommand)
	rootCmd.AddCommand(validateConfigCommand)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	var err error
	if schema, ok := builtinSchema(validateSchema); ok {
		var doc []byte
		if doc, err = os.ReadFile(validateJSON); err != nil {
			return fmt.Errorf("failed to read %s: %w", validateJSON, err)
		}
		err = schemas.ValidateDocument(validateSchema, schema, doc)
	} else {
		err = schemas.ValidateJSON(validateSchema, validateJSON)
	}
	if err != nil {
		_, _ = fmt.Fprintln(out, "Validation failed")
		return err
	}
	_, _ = fmt.Fprintln(out, "Validation passed")
	return nil
}

func builtinSchema(name string) ([]byte, bool) {
	key := strings.TrimSuffix(name, ".schema.json") + ".schema.json"
	schema, ok := schemafiles.Files[key]
	return schema, ok
}

func runValidateConfig(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	loaded, err := config.LoadConfig(validateConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := loaded.MergeWithDefaults(config.Config{})
	if err := cfg.Validate(); err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Descriptor %s is valid\n", validateConfig)
	_, _ = fmt.Fprintf(out, "  benchmarks: %s\n", registry.Version())
	for _, name := range cfg.Tables() {
		_, _ = fmt.Fprintf(out, "  table: %s\n", name)
	}
	return nil
}
