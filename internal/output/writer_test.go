package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cartpilot/cartpilot/internal/types"
)

func sampleSummary() *types.RunSummary {
	return &types.RunSummary{
		RunID:    "run-1",
		Retailer: types.RetailerWoolworths,
		Results: []types.ItemResult{
			{ItemID: "1", Name: "milk", Success: true, Message: "added via direct stage"},
			{ItemID: "2", Name: "dog food", Success: false, Message: "no candidate matched"},
		},
		Completed: 1,
		Failed:    1,
		Log:       []string{"ready for checkout: 1 added, 1 failed"},
	}
}

func TestNewWriter(t *testing.T) {
	tests := []struct {
		config  WriterConfig
		wantErr bool
	}{
		{WriterConfig{}, false},
		{WriterConfig{Type: STDOUT_WRITER_TYPE}, false},
		{WriterConfig{Type: FILE_WRITER_TYPE, FilePath: "out.json"}, false},
		{WriterConfig{Type: FILE_WRITER_TYPE}, true},
		{WriterConfig{Type: "carrier-pigeon"}, true},
	}
	for _, tt := range tests {
		_, err := New(&tt.config)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%+v) error = %v; wantErr %v", tt.config, err, tt.wantErr)
		}
	}
}

func TestStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewStdoutWriter()
	w.out = &buf
	if err := w.Write(sampleSummary()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	rendered := buf.String()
	for _, want := range []string{"milk", "dog food", "1 added, 1 failed", "ready for checkout"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered summary misses %q:\n%s", want, rendered)
		}
	}
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	w := NewFileWriter(&WriterConfig{Type: FILE_WRITER_TYPE, FilePath: path})
	if err := w.Write(sampleSummary()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written summary: %v", err)
	}
	var loaded types.RunSummary
	if err := json.Unmarshal(raw, &loaded); err != nil {
		t.Fatalf("written summary is not valid json: %v", err)
	}
	if loaded.RunID != "run-1" || len(loaded.Results) != 2 {
		t.Errorf("summary mangled on disk: %+v", loaded)
	}
}
