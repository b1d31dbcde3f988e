package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/roach88/deduce/internal/ir"
)

// Format is a program document syntax.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", &LoadError{Code: ErrCodeFormat, Path: path, Message: "unknown file extension (want .cue, .yaml, .yml or .json)"}
}

// Error codes.
const (
	ErrCodeNotFound    = "E001" // path missing
	ErrCodeFormat      = "E002" // unknown extension or unparsable document
	ErrCodeNoFiles     = "E003" // directory holds no CUE files
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeBuildFailed = "E005" // CUE build failed
	ErrCodeVersion     = "E006" // unsupported format version
	ErrCodeAtom        = "E010" // malformed atom or query
	ErrCodeTerm        = "E011" // malformed term
)

// LoadError reports a document that could not be turned into a program.
type LoadError struct {
	Code    string
	Path    string // file path or document path such as rules[0].body[1]
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError returns true if err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var e *LoadError
	return errors.As(err, &e)
}

// Load reads a program from a file or, for a directory, from the CUE
// package it contains.
func Load(path string) (*ir.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot access path", Err: err}
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadFile reads a program file; the format comes from the extension.
func LoadFile(path string) (*ir.Program, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot read file", Err: err}
	}
	prog, err := Parse(data, format, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return prog, nil
}

// LoadFacts reads only the facts of a program file. Rules and queries in
// the file are ignored.
func LoadFacts(path string) (map[ir.Predicate][]ir.Tuple, error) {
	prog, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if prog.Facts == nil {
		return map[ir.Predicate][]ir.Tuple{}, nil
	}
	return prog.Facts, nil
}

// Parse decodes a program document. name labels CUE positions in errors.
func Parse(data []byte, format Format, name string) (*ir.Program, error) {
	doc, err := decode(data, format, name)
	if err != nil {
		return nil, err
	}
	return doc.Program()
}

func decode(data []byte, format Format, name string) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &LoadError{Code: ErrCodeFormat, Message: "invalid YAML", Err: err}
		}
	case FormatJSON:
		if err := decodeJSON(data, &doc); err != nil {
			return nil, err
		}
	case FormatCUE:
		v := cuecontext.New().CompileBytes(data, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err), Err: err}
		}
		return fromCUE(v)
	default:
		return nil, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unknown format %q", format)}
	}
	return &doc, nil
}

// decodeJSON keeps numbers as json.Number so integers survive exactly.
func decodeJSON(data []byte, doc *Document) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(doc); err != nil {
		return &LoadError{Code: ErrCodeFormat, Message: "invalid JSON", Err: err}
	}
	return nil
}

// fromCUE exports a CUE value to JSON and decodes that. Every field must be
// concrete.
func fromCUE(v cue.Value) (*Document, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("CUE value is not concrete: %v", err), Err: err}
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("exporting CUE value: %v", err), Err: err}
	}
	var doc Document
	if err := decodeJSON(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadDir loads the CUE package in dir. All .cue files of the package are
// unified, so facts and rules may be split across files.
func LoadDir(dir string) (*ir.Program, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: dir, Message: "error scanning directory", Err: err}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Path: dir, Message: "no CUE files found"}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: dir, Message: fmt.Sprintf("loading CUE files: %v", inst.Err), Err: inst.Err}
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Path: dir, Message: fmt.Sprintf("building CUE value: %v", err), Err: err}
	}
	doc, err := fromCUE(v)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	prog, err := doc.Program()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	return prog, nil
}

// FindCUEFiles returns the .cue files directly in dir, skipping cue.mod.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// Marshal encodes prog in format. CUE output is not supported; JSON is
// valid CUE.
func Marshal(prog *ir.Program, format Format) ([]byte, error) {
	doc := NewDocument(prog)
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJSON, FormatCUE:
		return json.MarshalIndent(doc, "", "  ")
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
