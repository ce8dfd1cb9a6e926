package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectedOut []string
		absentOut   []string
	}{
		{
			name:        "defaults",
			args:        []string{"plan"},
			expectedOut: []string{"wipe-disk", "format-root", "handoff", "bootloader", "Installing systemd-boot", "desktop-packages", "ask", "29 stages"},
			absentOut:   []string{"grub"},
		},
		{
			name:        "btrfs and grub on nvme",
			args:        []string{"plan", "--filesystem", "btrfs", "--bootloader", "grub", "--disk", "/dev/nvme0n1"},
			expectedOut: []string{"Formatting /dev/nvme0n1p2 as btrfs", "Installing grub"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupMocks(t)
			output, err := executeCommand(rootCmd, "", tt.args...)
			require.NoError(t, err)
			for _, want := range tt.expectedOut {
				assert.Contains(t, output, want)
			}
			for _, absent := range tt.absentOut {
				assert.NotContains(t, output, absent)
			}
		})
	}
}

func TestPlanCommandRejectsUnknownValues(t *testing.T) {
	setupMocks(t)
	_, err := executeCommand(rootCmd, "", "plan", "--filesystem", "zfs")
	assert.Error(t, err, "unknown filesystem")
	_, err = executeCommand(rootCmd, "", "plan", "--filesystem", "ext4", "--bootloader", "lilo")
	assert.Error(t, err, "unknown bootloader")
}
