// Package output provides the interface and configuration for run
// summary writers.
package output

import (
	"fmt"

	"github.com/cartpilot/cartpilot/internal/types"
)

// Writer renders a finished run summary to a specific output.
type Writer interface {
	Write(summary *types.RunSummary) error
}

// WriterConfig defines the necessary parameters to make a new writer.
type WriterConfig struct {
	Type     string `yaml:"type" env:"WRITER_TYPE"`
	FilePath string `yaml:"filepath" env:"WRITER_FILEPATH"`
}

const (
	STDOUT_WRITER_TYPE = "stdout"
	FILE_WRITER_TYPE   = "file"
)

// New returns the writer matching the configuration; an empty type
// defaults to stdout.
func New(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE, "":
		return NewStdoutWriter(), nil
	case FILE_WRITER_TYPE:
		if wc.FilePath == "" {
			return nil, fmt.Errorf("file writer needs a filepath")
		}
		return NewFileWriter(wc), nil
	default:
		return nil, fmt.Errorf("unknown writer type %q", wc.Type)
	}
}
