package spreadsheet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Extension is appended to every persisted report.
const Extension = ".xlsx"

var unsafeName = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// FileName turns a user supplied output name into a safe file name with the
// workbook extension. Empty names fall back to the label set's default.
func (l Labels) FileName(outputName string) string {
	name := strings.TrimSpace(outputName)
	if strings.EqualFold(filepath.Ext(name), Extension) {
		name = strings.TrimSpace(name[:len(name)-len(Extension)])
	}
	name = unsafeName.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" {
		name = l.DefaultName
		if name == "" {
			name = Chinese.DefaultName
		}
	}
	return name + Extension
}

// Persist writes content to dir under the sanitized output name and returns
// the written path. Existing files with the same name are replaced.
func (l Labels) Persist(dir, outputName string, content []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, l.FileName(outputName))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
