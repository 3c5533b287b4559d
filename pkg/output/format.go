package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Format represents the output format type
type Format string

const (
	// FormatText is the default human-readable text format
	FormatText Format = "text"
	// FormatJSON is the JSON output format
	FormatJSON Format = "json"
	// FormatYAML is the YAML output format
	FormatYAML Format = "yaml"
)

// Formatter handles different output formats
type Formatter struct {
	format Format
	writer io.Writer
}

// New creates a new Formatter with the specified format
func New(format Format) *Formatter {
	return &Formatter{
		format: format,
		writer: os.Stdout,
	}
}

// SetWriter sets a custom writer for output (useful for testing)
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// Writer returns the destination, for callers rendering text themselves
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Output writes the data in the configured format
func (f *Formatter) Output(data any) error {
	switch f.format {
	case FormatJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case FormatYAML:
		encoder := yaml.NewEncoder(f.writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return encoder.Close()
	case FormatText:
		// Callers format text themselves; this is a fallback
		fmt.Fprintf(f.writer, "%v\n", data)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

// IsText returns true if the format is text
func (f *Formatter) IsText() bool {
	return f.format == FormatText
}

// AddFormatFlag adds a --output flag to a cobra command
func AddFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text|json|yaml)")
}

// GetFormatFromCmd extracts the output format from a cobra command's flags
func GetFormatFromCmd(cmd *cobra.Command) (Format, error) {
	formatStr, err := cmd.Flags().GetString("output")
	if err != nil {
		return FormatText, err
	}

	format := Format(formatStr)
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return format, nil
	default:
		return FormatText, fmt.Errorf("invalid output format: %s (must be 'text', 'json' or 'yaml')", formatStr)
	}
}
