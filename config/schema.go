package config

import (
	_ "embed"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/gazestream/errors"
)

//go:embed schema.json
var schemaJSON []byte

// Schema returns the JSON Schema configuration documents must satisfy.
// Durations appear as integer nanoseconds.
func Schema() []byte {
	out := make([]byte, len(schemaJSON))
	copy(out, schemaJSON)
	return out
}

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// ValidateSchema checks cfg against the embedded schema.
func ValidateSchema(cfg *Config) error {
	doc, err := toMap(cfg)
	if err != nil {
		return errors.WrapFatal(err, "config", "ValidateSchema", "encode config")
	}
	return validateDocument(gojsonschema.NewGoLoader(doc))
}

// ValidateDocument checks a raw JSON document, durations already in
// nanoseconds, against the embedded schema.
func ValidateDocument(data []byte) error {
	return validateDocument(gojsonschema.NewBytesLoader(data))
}

func validateDocument(doc gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(schemaLoader, doc)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"config", "ValidateSchema", "schema validation")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.New(strings.Join(msgs, "; "))),
		"config", "ValidateSchema", "schema validation")
}
