// Package manifest models the release manifest: the document naming the
// release and the packages and jobs that go into it.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v2"

	"github.com/relpack/relpack/internal/msg"
)

//go:embed manifest.schema.json
var schemaText string

// Artifact is one package or job referenced by a release manifest. It is a
// request for content with the given checksum, not a located file.
type Artifact struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	SHA1        string `yaml:"sha1"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
}

// Manifest is the parsed release manifest. It is loaded once and never
// mutated afterwards.
type Manifest struct {
	Name     string     `yaml:"name"`
	Version  string     `yaml:"version"`
	Packages []Artifact `yaml:"packages"`
	Jobs     []Artifact `yaml:"jobs"`
}

// Load reads and validates the release manifest at path. Validation happens
// here so that a manifest missing required fields fails up front instead of
// midway through artifact resolution.
func Load(path string) (Manifest, error) {
	yamlText, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	if err := validateSchema(yamlText); err != nil {
		return Manifest{}, fmt.Errorf("%s %s: %w", msg.InvalidManifest, path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(yamlText, &m); err != nil {
		return Manifest{}, fmt.Errorf("%s %s: %w", msg.InvalidManifest, path, err)
	}
	return m, nil
}

func validateSchema(yamlText []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(yamlText, &doc); err != nil {
		return err
	}
	doc, err := toStringKeys(doc)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("manifest.schema.json", strings.NewReader(schemaText)); err != nil {
		return err
	}
	schema, err := compiler.Compile("manifest.schema.json")
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

// toStringKeys converts yaml's map[interface{}]interface{} trees into
// map[string]interface{} so the schema validator can walk them.
func toStringKeys(val interface{}) (interface{}, error) {
	var err error
	switch val := val.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{})
		for k, v := range val {
			k, ok := k.(string)
			if !ok {
				return nil, errors.New("found non-string key")
			}
			m[k], err = toStringKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return m, nil
	case []interface{}:
		var l = make([]interface{}, len(val))
		for i, v := range val {
			l[i], err = toStringKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return l, nil
	default:
		return val, nil
	}
}
