package parser

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/plate-filler/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// YAMLParser reads experiment files of the form
//
//	plate_size: 96
//	plates: 2
//	experiments:
//	  - samples: [S1, S2]
//	    reagents: [R1]
//	    replicas: 3
type YAMLParser struct{}

func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

func (p *YAMLParser) Name() string {
	return "yaml"
}

func (p *YAMLParser) CanParse(filePath string) (bool, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".yaml" || ext == ".yml" {
		return true, nil
	}
	head, err := peek(filePath, 512)
	if err != nil {
		return false, err
	}
	return bytes.Contains(head, []byte("experiments:")), nil
}

func (p *YAMLParser) Parse(filePath string) (*models.ExperimentFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseYAML(file)
}

// ParseYAML parses an experiment document from an io.Reader.
func ParseYAML(r io.Reader) (*models.ExperimentFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc models.ExperimentFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}
