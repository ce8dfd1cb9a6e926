// Package receipt records what an install did, for later inspection on the
// installed system.
package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"archsetup/internal/stage"
)

// Path is the receipt location relative to the installed root.
const Path = "var/log/archsetup/receipt.json"

// Receipt describes one completed install. It holds no secrets.
type Receipt struct {
	Session    string          `json:"session"`
	Finished   time.Time       `json:"finished"`
	Hostname   string          `json:"hostname"`
	Username   string          `json:"username"`
	Disk       string          `json:"disk"`
	Filesystem string          `json:"filesystem"`
	Bootloader string          `json:"bootloader"`
	RootUUID   string          `json:"root_uuid"`
	Packages   []string        `json:"desktop_packages,omitempty"`
	Stages     []stage.Outcome `json:"stages"`
}

// Save writes the receipt below root.
var Save = func(root string, r Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	path := filepath.Join(root, Path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create receipt directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads the receipt below root.
var Load = func(root string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(root, Path))
	if err != nil {
		return nil, err
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &r, nil
}
