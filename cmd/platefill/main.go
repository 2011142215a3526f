// Command platefill allocates experiments to plates from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/plate-filler/backend/internal/models"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		log.Errorf("platefill failed: %v", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platefill",
		Short: "Place sample and reagent combinations on microplates",
		Long: `Reads an experiment file (YAML or CSV), fills plates grouped by reagent
and by sample, keeps the layout with fewer identity changes between
consecutive wells and renders each plate as PNG.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	cmd.AddCommand(newAllocateCommand(), newFormatsCommand())
	return cmd
}

func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported plate formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-6s %-5s %-8s\n", "SIZE", "ROWS", "COLUMNS")
			for _, size := range models.SupportedSizes {
				f, err := models.FormatForSize(size)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%-6d %-5d %-8d\n", size, f.Rows, f.Columns)
			}
			return nil
		},
	}
}
