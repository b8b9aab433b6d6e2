package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/udisondev/la2go-effects/internal/data"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "-out is required")
		os.Exit(2)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		slog.Error("writing effect catalog schema", "path", outPath, "error", err)
		os.Exit(1)
	}
	slog.Info("effect catalog schema written", "path", outPath)
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(data.EffectFile))
	schema.Title = "Effect Catalog"
	schema.Description = "Validates effect definitions loaded by the effect server catalog"
	return schema
}

// writeSchema writes atomically through a temp file.
func writeSchema(outPath string, schema *jsonschema.Schema) error {
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
