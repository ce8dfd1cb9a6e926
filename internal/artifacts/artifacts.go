// Package artifacts renders the configuration files written into the new
// system. Content is fixed text with a few substitution points.
package artifacts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Values are the substitution points shared by all templates.
type Values struct {
	Hostname      string
	Username      string
	Keymap        string
	Locale        string
	RootUUID      string
	Btrfs         bool
	WallpaperPath string
}

// File is a rendered artifact, relative to the target root.
type File struct {
	Path    string
	Mode    os.FileMode
	Content string
}

// Write writes f below root, creating parent directories.
func Write(root string, f File) error {
	dst := filepath.Join(root, f.Path)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
	}
	mode := f.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := os.WriteFile(dst, []byte(f.Content), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(dst, mode)
}

// XKBLayout maps a console keymap to the XKB layout Hyprland expects.
func XKBLayout(keymap string) string {
	switch keymap {
	case "uk":
		return "gb"
	case "":
		return "us"
	}
	if i := strings.IndexAny(keymap, "-_"); i > 0 {
		return keymap[:i]
	}
	return keymap
}

func executeTemplate(name, tmplStr string, data interface{}) (string, error) {
	tmpl, err := template.New(name).Delims("[[", "]]").Funcs(template.FuncMap{
		"xkb": XKBLayout,
	}).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func render(path string, mode os.FileMode, tmplStr string, v Values) (File, error) {
	content, err := executeTemplate(filepath.Base(path), tmplStr, v)
	if err != nil {
		return File{}, fmt.Errorf("failed to render %s: %w", path, err)
	}
	return File{Path: path, Mode: mode, Content: content}, nil
}
