// Package schema validates devcontainer.json documents against the
// embedded JSON Schema before they're unmarshaled into typed Go
// structs, the way writ/writ.go validates against the upstream
// devcontainer.json schema.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed devcontainer.schema.json
var schemaDoc []byte

const schemaID = "https://devc.internal/schemas/devcontainer.json"

var (
	compiled     *jsonschema.Schema
	compileOnce  sync.Once
	compileErr   error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var doc any
		if err := json.Unmarshal(schemaDoc, &doc); err != nil {
			compileErr = fmt.Errorf("schema: decoding embedded schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaID, doc); err != nil {
			compileErr = fmt.Errorf("schema: registering embedded schema: %w", err)
			return
		}
		s, err := compiler.Compile(schemaID)
		if err != nil {
			compileErr = fmt.Errorf("schema: compiling embedded schema: %w", err)
			return
		}
		compiled = s
	})
	return compiled, compileErr
}

// ValidationError reports every schema violation jsonschema found,
// formatted as a single multi-line message.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return "schema: " + e.Detail }

// Validate checks standardized (JSONC-stripped) devcontainer.json bytes
// against the embedded schema.
func Validate(standardized []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("schema: decoding document: %w", err)
	}

	if err := s.Validate(doc); err != nil {
		return &ValidationError{Detail: err.Error()}
	}
	return nil
}
