// Package batchfile reads batch documents from disk. JSON and YAML are accepted;
// both are checked against the JSON schema reflected from snapshot.Batch before
// they are decoded.
package batchfile

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const draft7 = "http://json-schema.org/draft-07/schema#"

var Suffixes = []string{".json", ".yml", ".yaml"}

// SchemaError lists every violation found in one document.
type SchemaError struct {
	File       string
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s does not match the batch schema:\n  - %s", e.File, strings.Join(e.Violations, "\n  - "))
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	compiled   *gojsonschema.Schema
	compileErr error
)

// Schema returns the JSON schema batch documents must satisfy.
func Schema() *jsonschema.Schema {
	schemaOnce.Do(compile)
	return schema
}

func compile() {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema = r.Reflect(&snapshot.Batch{})
	schema.Version = draft7
	schema.Title = "staywarehouse batch"

	loader := gojsonschema.NewSchemaLoader()
	loader.Draft = gojsonschema.Draft7
	loader.Validate = true
	compiled, compileErr = loader.Compile(gojsonschema.NewGoLoader(schema))
}

// ReadFile decodes the batch document at path.
func ReadFile(fs afero.Fs, path string) (*snapshot.Batch, error) {
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read batch file %s", path)
	}
	return Decode(path, buf)
}

// Decode validates and decodes buf. The name picks the format by extension and
// is used in error messages.
func Decode(name string, buf []byte) (*snapshot.Batch, error) {
	var doc any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(buf, &doc); err != nil {
			return nil, errors.Wrapf(err, "failed to parse YAML batch %s", name)
		}
	case ".json", "":
		if err := json.Unmarshal(buf, &doc); err != nil {
			return nil, errors.Wrapf(err, "failed to parse JSON batch %s", name)
		}
	default:
		return nil, errors.Errorf("unsupported batch file extension for %s", name)
	}

	doc, err := normalize(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid batch %s", name)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, errors.Errorf("batch %s must be an object", name)
	}

	if err := validate(name, doc); err != nil {
		return nil, err
	}

	// Round trip through JSON so YAML timestamps reach the custom date decoder as strings.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to re-encode batch %s", name)
	}

	var batch snapshot.Batch
	if err := json.Unmarshal(normalized, &batch); err != nil {
		return nil, errors.Wrapf(err, "failed to decode batch %s", name)
	}
	return &batch, nil
}

func validate(name string, doc any) error {
	schemaOnce.Do(compile)
	if compileErr != nil {
		return errors.Wrap(compileErr, "failed to compile the batch schema")
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.Wrapf(err, "failed to validate batch %s", name)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return &SchemaError{File: name, Violations: violations}
}

// normalize drops null members, which stand for missing attributes, and turns
// YAML maps into string-keyed maps.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if child == nil {
				continue
			}
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			key, ok := k.(string)
			if !ok {
				return nil, errors.Errorf("object key %v is not a string", k)
			}
			if child == nil {
				continue
			}
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
