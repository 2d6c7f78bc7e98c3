package commands

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed all:templates
var templateFS embed.FS

// copyTemplate copies an embedded template directory to the target path.
// It handles special file renames (e.g., "gitignore" -> ".gitignore") and
// returns the files it wrote.
func copyTemplate(templateName, targetDir string, force bool) ([]string, error) {
	root := path.Join("templates", templateName)
	var written []string

	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Calculate relative path from template root
		relPath := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")

		// Skip root directory
		if relPath == "" {
			return nil
		}

		// Handle special file renames
		relPath = renameSpecialFiles(relPath)
		targetPath := filepath.Join(targetDir, filepath.FromSlash(relPath))

		if d.IsDir() {
			return os.MkdirAll(targetPath, 0750)
		}

		// Check if file exists
		if !force {
			if _, err := os.Stat(targetPath); err == nil {
				return nil // Skip existing files
			}
		}

		// Read and write file
		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}

		if err := os.WriteFile(targetPath, content, 0600); err != nil {
			return err
		}
		written = append(written, relPath)
		return nil
	})

	return written, err
}

// renameSpecialFiles handles files that need renaming (e.g., dotfiles).
func renameSpecialFiles(p string) string {
	base := path.Base(p)
	dir := path.Dir(p)

	switch base {
	case "gitignore":
		return path.Join(dir, ".gitignore")
	case "env.example":
		return path.Join(dir, ".env.example")
	default:
		return p
	}
}

// listTemplateFiles returns all files in a template for display purposes.
func listTemplateFiles(templateName string) ([]string, error) {
	var files []string
	root := path.Join("templates", templateName)

	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relPath := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
			files = append(files, renameSpecialFiles(relPath))
		}
		return nil
	})

	return files, err
}

// groupTemplateFiles splits files into project configuration and app sources.
func groupTemplateFiles(files []string, appDir string) map[string][]string {
	groups := map[string][]string{
		"config": {},
		"app":    {},
	}

	for _, f := range files {
		if strings.HasPrefix(f, appDir+"/") {
			groups["app"] = append(groups["app"], f)
			continue
		}
		groups["config"] = append(groups["config"], f)
	}

	return groups
}
