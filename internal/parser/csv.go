package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/plate-filler/backend/internal/models"
)

// ListSeparator separates identifiers inside one CSV cell.
const ListSeparator = ";"

// experimentRow is one CSV line: "samples,reagents,replicas".
type experimentRow struct {
	Samples  string `csv:"samples"`
	Reagents string `csv:"reagents"`
	Replicas int    `csv:"replicas"`
}

// CSVParser reads one experiment per row with ';'-separated lists, e.g.
//
//	samples,reagents,replicas
//	S1;S2,R1;R2,3
type CSVParser struct{}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Name() string {
	return "csv"
}

func (p *CSVParser) CanParse(filePath string) (bool, error) {
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		return true, nil
	}
	head, err := peek(filePath, 256)
	if err != nil {
		return false, err
	}
	header := strings.ToLower(string(bytes.SplitN(head, []byte("\n"), 2)[0]))
	return strings.Contains(header, "samples") &&
		strings.Contains(header, "reagents") &&
		strings.Contains(header, "replicas"), nil
}

func (p *CSVParser) Parse(filePath string) (*models.ExperimentFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseCSV(file)
}

// ParseCSV parses experiment rows from an io.Reader.
func ParseCSV(r io.Reader) (*models.ExperimentFile, error) {
	var rows []*experimentRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("reading experiment rows: %w", err)
	}

	set := make(models.ExperimentSet, 0, len(rows))
	for _, row := range rows {
		set = append(set, models.Experiment{
			Samples:  splitList(row.Samples, ListSeparator),
			Reagents: splitList(row.Reagents, ListSeparator),
			Replicas: row.Replicas,
		})
	}
	return &models.ExperimentFile{Experiments: set}, nil
}
