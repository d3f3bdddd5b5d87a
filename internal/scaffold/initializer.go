// Package scaffold writes a starter coordinator.yml.
package scaffold

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Adidier/agents/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes the starter configuration into dir and returns the
// created paths. If force is true an existing coordinator.yml is replaced.
func Initialize(dir string, force bool, out io.Writer) ([]string, error) {
	if force {
		if err := handleForce(dir, out); err != nil {
			return nil, err
		}
	} else if err := CheckExisting(dir); err != nil {
		return nil, err
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	created := make([]string, 0, len(files))
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		created = append(created, file.Path)
	}

	if err := validateCreatedFiles(dir); err != nil {
		return nil, err
	}

	return created, nil
}

// CheckExisting returns an error if dir already holds a coordinator.yml.
func CheckExisting(dir string) error {
	path := filepath.Join(dir, config.DefaultPath)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("already initialized\n\nFound existing: %s\n\nUse 'gridctl init --force' to overwrite it", path)
	}
	return nil
}

func handleForce(dir string, out io.Writer) error {
	path := filepath.Join(dir, config.DefaultPath)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "⚠️  Removing existing %s...\n", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

func getTemplateFiles(dir string) ([]FileInfo, error) {
	content, err := templatesFS.ReadFile("templates/coordinator.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read coordinator.yml template: %w", err)
	}
	return []FileInfo{{
		Path:        filepath.Join(dir, config.DefaultPath),
		Content:     content,
		Permissions: 0644,
	}}, nil
}

// validateCreatedFiles loads the written file through the real config loader.
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, config.DefaultPath)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
	}
	return nil
}

// PrintSuccess prints the created files and next steps.
func PrintSuccess(out io.Writer, created []string) {
	fmt.Fprintln(out, "\n✅ Successfully initialized coordinator configuration!")
	fmt.Fprintln(out, "\nCreated:")
	for _, path := range created {
		fmt.Fprintf(out, "  ✓ %s\n", path)
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Point persistence.redis_url at your Redis")
	fmt.Fprintln(out, "  2. Adjust categories to match your producers")
	fmt.Fprintln(out, "  3. Start the coordinator with COORDINATOR_CONFIG set to this file")
}
