// Package picker turns a user's file choice into a focus.SelectedFile.
package picker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/kamilpajak/edufocus/internal/focus"
)

var (
	// ErrCanceled is returned when the user dismissed the picker.
	ErrCanceled = errors.New("file selection canceled")
	// ErrNotCSV is returned for files without a .csv extension.
	ErrNotCSV = errors.New("file is not a CSV document")
)

// FromPath validates path and describes it as a selected CSV file.
// An empty path is treated as a canceled pick.
func FromPath(path string) (*focus.SelectedFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrCanceled
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotCSV)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	return &focus.SelectedFile{
		Path:        abs,
		Name:        filepath.Base(path),
		ContentType: focus.ContentTypeCSV,
	}, nil
}

// Interactive shows a terminal file picker rooted at dir, limited to CSV files.
func Interactive(dir string) (*focus.SelectedFile, error) {
	var path string

	fp := huh.NewFilePicker().
		Title("Select a CSV file with student behavioral data").
		CurrentDirectory(dir).
		AllowedTypes([]string{".csv"}).
		Picking(true).
		Value(&path)

	if err := huh.NewForm(huh.NewGroup(fp)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, ErrCanceled
		}
		return nil, err
	}

	return FromPath(path)
}
