package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	tschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// GenerateSchema reflects a JSON Schema from a Go type, the way
// common/llm.GenerateSchemaFrom does for the teacher's tool-call payloads.
// Used to build the schemas that internal/worker validates parsed worker
// output against before a fragment, DocumentMap, or proposal is accepted.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var (
	compileMu sync.Mutex
	compiled  = map[string]*tschema.Schema{}
)

func compiledSchemaFor(name string, schema any) (*tschema.Schema, error) {
	compileMu.Lock()
	defer compileMu.Unlock()

	if s, ok := compiled[name]; ok {
		return s, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema %s: %w", name, err)
	}

	doc, err := tschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding schema %s: %w", name, err)
	}

	url := "mem://" + name
	c := tschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("adding schema resource %s: %w", name, err)
	}

	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", name, err)
	}

	compiled[name] = sch
	return sch, nil
}

// ValidateJSON validates raw JSON bytes against the reflected schema for T,
// identified by name for caching. Used to validate a worker's parsed
// structured output before it is accepted as a fragment, DocumentMap, or
// proposal.
func ValidateJSON[T any](name string, raw []byte) error {
	sch, err := compiledSchemaFor(name, GenerateSchema[T]())
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("decoding instance for schema %s: %w", name, err)
	}

	if err := sch.Validate(instance); err != nil {
		return fmt.Errorf("schema %s validation: %w", name, err)
	}

	return nil
}
