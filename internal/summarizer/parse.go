package summarizer

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed summary.schema.json
var summarySchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

var ErrNoJSON = errors.New("no JSON object in model output")

// ParseSummary repairs the model output and validates it against the summary schema.
func ParseSummary(content string) (*Summary, error) {
	repaired, err := RepairJSON(content)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(repaired))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode summary JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("summary validation failed: %w", err)
	}

	var s Summary
	if err := json.Unmarshal([]byte(repaired), &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("summary.schema.json", strings.NewReader(summarySchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("summary.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})
	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	return compiledSchema, nil
}

// RepairJSON extracts the first JSON object from model output and fixes the common
// defects of generated JSON (code fences, single quotes, unquoted keys, trailing
// commas, unterminated strings and unclosed brackets). Prose after a complete
// object is ignored.
func RepairJSON(content string) (string, error) {
	content = stripFences(content)
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", ErrNoJSON
	}
	content = content[start:]
	if end := strings.LastIndexByte(content, '}'); end >= 0 && json.Valid([]byte(content[:end+1])) {
		return content[:end+1], nil
	}

	repaired, err := jsonrepair.RepairJSON(content)
	if err != nil {
		return "", fmt.Errorf("repair summary JSON: %w", err)
	}
	if strings.TrimSpace(repaired) == "" {
		return "", ErrNoJSON
	}
	return repaired, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	idx := strings.Index(s, "```")
	if idx < 0 {
		return s
	}
	rest := s[idx+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
