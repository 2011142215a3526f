package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/plate-filler/backend/internal/models"
)

// ErrUnknownFormat is returned when no parser matches a file or format name.
var ErrUnknownFormat = errors.New("unknown experiment file format")

// Registry resolves experiment files to parsers, either by an explicit
// format name or by detection in the order parsers were given.
type Registry struct {
	detect []Parser
	byName map[string]Parser
}

var defaultRegistry = NewRegistry()

// NewRegistry builds a registry over parsers, or over the YAML and CSV
// parsers when none are given. A repeated name keeps the first parser.
func NewRegistry(parsers ...Parser) *Registry {
	if len(parsers) == 0 {
		parsers = []Parser{NewYAMLParser(), NewCSVParser()}
	}
	r := &Registry{byName: make(map[string]Parser, len(parsers))}
	for _, p := range parsers {
		name := strings.ToLower(p.Name())
		if _, dup := r.byName[name]; dup {
			continue
		}
		r.byName[name] = p
		r.detect = append(r.detect, p)
	}
	return r
}

// GetGlobalRegistry returns the registry shared by the server and the CLI.
func GetGlobalRegistry() *Registry {
	return defaultRegistry
}

// FindParser returns the first parser that accepts the file. Parsers that
// fail to inspect it are skipped.
func (r *Registry) FindParser(filePath string) (Parser, error) {
	for _, p := range r.detect {
		if ok, err := p.CanParse(filePath); err == nil && ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filePath)
}

// Lookup returns the parser registered under name, ignoring case.
func (r *Registry) Lookup(name string) (Parser, error) {
	if p, ok := r.byName[strings.ToLower(name)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// ParseFile parses filePath with the named format, detecting it when format
// is empty.
func (r *Registry) ParseFile(filePath, format string) (*models.ExperimentFile, error) {
	var (
		p   Parser
		err error
	)
	if format != "" {
		p, err = r.Lookup(format)
	} else {
		p, err = r.FindParser(filePath)
	}
	if err != nil {
		return nil, err
	}
	return p.Parse(filePath)
}
