package main

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/plate-filler/backend/internal/allocator"
	"github.com/plate-filler/backend/internal/models"
	"github.com/plate-filler/backend/internal/parser"
	"github.com/plate-filler/backend/internal/render"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const colorByBoth = "both"

type allocateOptions struct {
	file       string
	format     string
	plateSize  int
	plateCount int
	outDir     string
	colorBy    string
	wellSize   int
	parallel   bool
	jsonOutput bool
}

func (o *allocateOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.file, "file", "f", "", "Experiment file (YAML or CSV)")
	fs.StringVar(&o.format, "format", "", "File format, yaml or csv (default detected)")
	fs.IntVar(&o.plateSize, "plate-size", 0, "Wells per plate, 96 or 384 (default from file, else 96)")
	fs.IntVar(&o.plateCount, "plates", 0, "Number of plates available (default from file, else 1)")
	fs.StringVarP(&o.outDir, "out", "o", "", "Directory for plate images; no images when empty")
	fs.StringVar(&o.colorBy, "color-by", colorByBoth, "Color wells by reagent, sample or both")
	fs.IntVar(&o.wellSize, "well-size", render.DefaultWellSize, "Well edge length in pixels")
	fs.BoolVar(&o.parallel, "parallel", false, "Build both candidate layouts concurrently")
	fs.BoolVar(&o.jsonOutput, "json", false, "Print the selected layout as JSON")
}

func (o *allocateOptions) colorModes() ([]models.ColorBy, error) {
	if o.colorBy == colorByBoth {
		return []models.ColorBy{models.ColorByReagent, models.ColorBySample}, nil
	}
	c, err := models.ParseColorBy(o.colorBy)
	if err != nil {
		return nil, err
	}
	return []models.ColorBy{c}, nil
}

func newAllocateCommand() *cobra.Command {
	opts := &allocateOptions{}

	cmd := &cobra.Command{
		Use:   "allocate -f FILE",
		Short: "Allocate the experiments of a file and report both candidate layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllocate(cmd, opts)
		},
	}
	opts.addFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runAllocate(cmd *cobra.Command, opts *allocateOptions) error {
	modes, err := opts.colorModes()
	if err != nil {
		return err
	}

	doc, err := parser.GetGlobalRegistry().ParseFile(opts.file, opts.format)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", opts.file, err)
	}

	plateSize, plateCount := doc.PlateSize, doc.PlateCount
	if cmd.Flags().Changed("plate-size") || plateSize == 0 {
		plateSize = orDefault(opts.plateSize, models.Format96.Capacity())
	}
	if cmd.Flags().Changed("plates") || plateCount == 0 {
		plateCount = orDefault(opts.plateCount, 1)
	}

	if err := allocator.Validate(doc.Experiments, plateSize, plateCount); err != nil {
		return err
	}
	format, err := models.FormatForSize(plateSize)
	if err != nil {
		return err
	}

	res, err := allocator.Allocate(doc.Experiments, format, plateCount, allocator.Options{Parallel: opts.parallel})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Selected.Layout); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "wells needed: %d, available: %d (%d x %d-well plates)\n",
			res.WellsNeeded, res.WellsAvailable, plateCount, plateSize)
		for _, c := range res.Candidates {
			fmt.Fprintf(w, "candidate %-10s penalty %.1f on %d plate(s)\n", c.Strategy, c.Penalty, len(c.Layout.Plates))
		}
		fmt.Fprintf(w, "selected: %s\n", res.Selected.Strategy)
	}

	if opts.outDir == "" {
		return nil
	}
	return writeImages(cmd, opts, res.Selected.Layout, modes)
}

func writeImages(cmd *cobra.Command, opts *allocateOptions, layout models.Layout, modes []models.ColorBy) error {
	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	byReagent, bySample, err := render.NewRenderer(opts.wellSize, nil).DrawLayout(layout)
	if err != nil {
		return err
	}
	images := map[models.ColorBy][]image.Image{
		models.ColorByReagent: byReagent,
		models.ColorBySample:  bySample,
	}

	for _, mode := range modes {
		for i, img := range images[mode] {
			path := filepath.Join(opts.outDir, fmt.Sprintf("plate_%d_%s.png", i+1, mode))
			if err := gg.SavePNG(path, img); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			if !opts.jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			}
		}
	}
	return nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
