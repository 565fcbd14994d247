package toml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/coplay/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	reportFileMode  = 0o600
	reportDirMode   = 0o700
	tempFilePattern = ".coplay-report-*.toml.tmp"
)

// Report is what one run leaves behind on disk.
type Report struct {
	Tracked     domain.AccountID
	GeneratedAt time.Time
	DryRun      bool
	Counts      domain.CoPlayCounts
	Renames     []domain.Rename
}

// Write replaces the report at path atomically.
func Write(path string, report Report) error {
	path, err := normalizePath(path)
	if err != nil {
		return err
	}

	file := toSchema(report)
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(path), reportDirMode); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := tempFile.Chmod(reportFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp report: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	cleanup = false

	return nil
}

// Read loads a previous report. A missing file yields ok=false.
func Read(path string) (report Report, ok bool, err error) {
	path, err = normalizePath(path)
	if err != nil {
		return Report{}, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, fmt.Errorf("read report: %w", err)
	}

	var file reportSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return Report{}, false, fmt.Errorf("decode report: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return Report{}, false, err
	}

	return fromSchema(file), true, nil
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("report path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve report path: %w", err)
	}
	return filepath.Clean(abs), nil
}
