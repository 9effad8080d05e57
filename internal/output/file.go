package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cartpilot/cartpilot/internal/types"
)

// FileWriter dumps the run summary as indented JSON.
type FileWriter struct {
	writerConfig *WriterConfig
}

// NewFileWriter returns a new FileWriter
func NewFileWriter(wc *WriterConfig) *FileWriter {
	return &FileWriter{writerConfig: wc}
}

func (fr *FileWriter) Write(summary *types.RunSummary) error {
	// product titles may contain html characters, keep them readable
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("error while encoding summary: %w", err)
	}
	if err := os.WriteFile(fr.writerConfig.FilePath, buffer.Bytes(), 0644); err != nil {
		return fmt.Errorf("error while writing summary to file: %w", err)
	}
	slog.Info(fmt.Sprintf("wrote run summary to %s", fr.writerConfig.FilePath))
	return nil
}
