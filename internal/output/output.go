// Package output writes vmscope reports to files or streams.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"vmscope/internal/diag"
	"vmscope/internal/disasm"
)

// FieldRecord is one compiled field, optionally with the value read from
// the target.
type FieldRecord struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	DeclaredType string `json:"declared_type"`
	Static       bool   `json:"static,omitempty"`
	Offset       uint64 `json:"offset,omitempty"`
	Address      uint64 `json:"address,omitempty"`
	Value        string `json:"value,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WriteFieldsJSON writes field records to fields.json.
func WriteFieldsJSON(dir string, fields []FieldRecord) error {
	return WriteJSON(filepath.Join(dir, "fields.json"), fields)
}

// WriteDiagsJSON writes diagnostics to diags.json. A nil slice is written
// as an empty array.
func WriteDiagsJSON(dir string, diags []diag.Diag) error {
	if diags == nil {
		diags = []diag.Diag{}
	}
	return WriteJSON(filepath.Join(dir, "diags.json"), diags)
}

// WriteASM writes disassembled instructions to path.
func WriteASM(path string, insts []disasm.Inst, lookup disasm.SymbolLookup, annotators ...disasm.Annotator) error {
	text := disasm.Format(insts, lookup, annotators...)
	return WriteFile(path, []byte(text))
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	if err := EncodeJSON(f, v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}

// EncodeJSON writes v as indented JSON to w.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
