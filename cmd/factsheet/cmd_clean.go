package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"factsheet/internal/factsheet"
	"factsheet/internal/htmltext"
)

var (
	cleanFormat string
	cleanJSON   bool
	cleanHTML   bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean [file]",
	Short: "Rebuild numbered fields from raw fact sheet text",
	Long: `Reads raw report text from a file or stdin and prints the reconstructed
fields, either one "N. Field — Value" line per field or as a JSON mapping.

Saved HTML pages (.html/.htm or --html) are reduced to their report text first.
A JSON object input is flattened to "key value key value ..." before parsing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanFormat, "format", "f", "pretty", "Output format: pretty or structured")
	cleanCmd.Flags().BoolVar(&cleanJSON, "json", false, "Shorthand for --format structured")
	cleanCmd.Flags().BoolVar(&cleanHTML, "html", false, "Treat the input as an HTML page")
}

func runClean(cmd *cobra.Command, args []string) error {
	format := cleanFormat
	if cleanJSON {
		format = "structured"
	}
	if format != "pretty" && format != "structured" {
		return fmt.Errorf("unknown format %q (want pretty or structured)", format)
	}

	var (
		data   []byte
		err    error
		isHTML = cleanHTML
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
		ext := strings.ToLower(filepath.Ext(args[0]))
		isHTML = isHTML || ext == ".html" || ext == ".htm"
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	text := string(data)
	if isHTML {
		if text, err = htmltext.ExtractString(text); err != nil {
			return err
		}
	} else if flat, ok := factsheet.FlattenMapping(text); ok {
		text = flat
	}

	records := factsheet.Reconstruct(text)
	out := cmd.OutOrStdout()
	if format == "pretty" {
		_, err = fmt.Fprintln(out, factsheet.Pretty(records))
		return err
	}

	js, err := factsheet.NewStructured(records).JSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(js))
	return err
}
