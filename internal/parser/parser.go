// Package parser reads experiment definition files.
package parser

import (
	"os"
	"strings"

	"github.com/plate-filler/backend/internal/models"
)

// Parser defines the interface for experiment file parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// Parse reads the entire file.
	Parse(filePath string) (*models.ExperimentFile, error)
}

// splitList splits a delimited identifier list, dropping surrounding blanks.
func splitList(s string, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// peek returns up to n bytes from the start of a file.
func peek(filePath string, n int) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}
