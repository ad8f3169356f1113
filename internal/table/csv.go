package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	WideFile  = "main.csv"
	NarrowDir = "separated"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WidePath is where the wide table is written under dataDir.
func WidePath(dataDir string) string {
	return filepath.Join(dataDir, WideFile)
}

// NarrowPath is where the narrow table for column is written under dataDir.
func NarrowPath(dataDir, column string) string {
	return filepath.Join(dataDir, NarrowDir, column+".csv")
}

// WriteCSV writes t with a header row. With bom set the file starts with a
// UTF-8 byte-order mark so spreadsheet tools detect the encoding.
func WriteCSV(path string, t *Table, bom bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := writeCSV(f, t, bom); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeCSV(w io.Writer, t *Table, bom bool) error {
	bw := bufio.NewWriter(w)
	if bom {
		if _, err := bw.Write(utf8BOM); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadCSV loads a table written by WriteCSV. A leading byte-order mark is
// ignored. An empty file yields an empty table.
func ReadCSV(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &Table{Rows: [][]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if rows == nil {
		rows = [][]string{}
	}

	return &Table{Columns: header, Rows: rows}, nil
}
