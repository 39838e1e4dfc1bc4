// Package jobfile loads job definitions in bulk from a YAML file.
//
// A job file looks like:
//
//	requires: ">= 0.4"   # optional pulse version constraint
//	jobs:
//	  - name: backup
//	    schedule: 1d
//	    command: ./scripts/backup.sh
//	    on_failure: retry
//	    retries: 2
//
// The document is validated against an embedded JSON schema before any job
// is decoded, and every spec is validated again with the store's own rules.
package jobfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/pulse/schedule"
	"github.com/teranos/pulse/version"
)

// SchemaURL identifies the embedded schema
const SchemaURL = "https://github.com/teranos/pulse/jobfile/v1.json"

//go:embed schema.json
var schemaBytes []byte

// Error is one problem found in a job file
type Error struct {
	Path  string
	Index int    // position in the jobs list; -1 for document-level problems
	Name  string // job name when known
	Msg   string
}

func (e Error) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %s", e.Path, e.Msg)
	case e.Name != "":
		return fmt.Sprintf("%s: jobs[%d] (%s): %s", e.Path, e.Index, e.Name, e.Msg)
	default:
		return fmt.Sprintf("%s: jobs[%d]: %s", e.Path, e.Index, e.Msg)
	}
}

// Errors collects every problem in a file so they can be fixed in one pass
type Errors []Error

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "job file validation failed"
	case 1:
		return e[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
	}
}

// Schema compiles the embedded job file schema
func Schema() (*jsonschema.Schema, error) {
	b := bytes.TrimSpace(schemaBytes)
	if len(b) == 0 {
		return nil, errors.New("embedded job file schema is empty")
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "parse embedded schema json")
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(SchemaURL, doc); err != nil {
		return nil, errors.Wrap(err, "add embedded schema resource")
	}
	s, err := c.Compile(SchemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compile embedded schema")
	}
	return s, nil
}

// Load reads and validates the job file at path
func Load(path string) ([]schedule.JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("job file %s does not exist", path)
		}
		return nil, errors.Wrapf(err, "read job file %s", path)
	}
	return Parse(path, data)
}

// Parse validates a job file's contents; path is only used in messages.
// Any problem yields an invalid-input error wrapping Errors.
func Parse(path string, data []byte) ([]schedule.JobSpec, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, invalid(Errors{{Path: path, Index: -1, Msg: "empty job file"}})
	}

	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return nil, invalid(Errors{{Path: path, Index: -1, Msg: "parse yaml: " + err.Error()}})
	}
	// Round-trip through JSON so the schema sees plain JSON types
	jsonBytes, err := json.Marshal(yamlDoc)
	if err != nil {
		return nil, invalid(Errors{{Path: path, Index: -1, Msg: "convert yaml to json: " + err.Error()}})
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return nil, errors.Wrap(err, "parse converted json")
	}

	sch, err := Schema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(jsonDoc); err != nil {
		return nil, invalid(Errors{{Path: path, Index: -1, Msg: formatSchemaErr(err)}})
	}

	var doc struct {
		Requires string             `json:"requires"`
		Jobs     []schedule.JobSpec `json:"jobs"`
	}
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, invalid(Errors{{Path: path, Index: -1, Msg: "decode jobs: " + err.Error()}})
	}

	if doc.Requires != "" {
		ok, err := version.Satisfies(doc.Requires)
		if err != nil {
			return nil, invalid(Errors{{Path: path, Index: -1, Msg: err.Error()}})
		}
		if !ok {
			return nil, invalid(Errors{{Path: path, Index: -1,
				Msg: fmt.Sprintf("requires pulse %s, this is %s", doc.Requires, version.Version)}})
		}
	}

	var errs Errors
	seen := make(map[string]int, len(doc.Jobs))
	for i := range doc.Jobs {
		spec := &doc.Jobs[i]
		if err := spec.Validate(); err != nil {
			errs = append(errs, Error{Path: path, Index: i, Name: spec.Name, Msg: err.Error()})
			continue
		}
		if first, dup := seen[spec.Name]; dup {
			errs = append(errs, Error{Path: path, Index: i, Name: spec.Name,
				Msg: fmt.Sprintf("duplicate name, first defined at jobs[%d]", first)})
			continue
		}
		seen[spec.Name] = i
	}
	if len(errs) > 0 {
		sort.SliceStable(errs, func(a, b int) bool { return errs[a].Index < errs[b].Index })
		return nil, invalid(errs)
	}
	return doc.Jobs, nil
}

func invalid(errs Errors) error {
	return errors.Mark(errs, errors.ErrInvalidInput)
}

// formatSchemaErr flattens the multi-line validation report onto one line
func formatSchemaErr(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[i]), "- "))
	}
	return "schema: " + strings.Join(lines, "; ")
}
