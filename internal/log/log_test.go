package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original, originalNoColor := color.Output, color.NoColor
	color.Output = &buf
	color.NoColor = true
	t.Cleanup(func() {
		color.Output = original
		color.NoColor = originalNoColor
	})
	return &buf
}

func TestSetupWritesFile(t *testing.T) {
	captureConsole(t)
	dir := filepath.Join(t.TempDir(), "logs")

	closer, err := Setup(dir, 1, "abc-123")
	require.NoError(t, err)
	t.Cleanup(Reset)

	Info("partitioning %s", "/dev/sda")
	Debug("exec sgdisk --zap-all /dev/sda")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "partitioning /dev/sda")
	assert.Contains(t, string(data), "sgdisk --zap-all")
	assert.Contains(t, string(data), `"session":"abc-123"`)

	info, err := os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSetupInfoLevelDropsDebug(t *testing.T) {
	captureConsole(t)
	dir := t.TempDir()

	closer, err := Setup(dir, 0, "")
	require.NoError(t, err)
	t.Cleanup(Reset)

	Debug("hidden detail")
	Warn("visible warning")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden detail")
	assert.Contains(t, string(data), "visible warning")
}

func TestConsolePrefixes(t *testing.T) {
	buf := captureConsole(t)

	Title("archsetup")
	Step("Formatting")
	Info("done")
	Warn("slow mirror")
	Command("mkfs.ext4", "-F", "/dev/sda2")

	out := buf.String()
	assert.Contains(t, out, "==> archsetup\n")
	assert.Contains(t, out, "\n==> Formatting\n")
	assert.Contains(t, out, "  -> done\n")
	assert.Contains(t, out, "  -> WARNING: slow mirror\n")
	assert.Contains(t, out, "  -> Running: mkfs.ext4 -F /dev/sda2\n")
}

func TestFatal(t *testing.T) {
	buf := captureConsole(t)

	Fatal("stage", "bootloader", "grub-install: efibootmgr failed")
	assert.Equal(t, "✖ FATAL [stage] bootloader: grub-install: efibootmgr failed\n", buf.String())

	buf.Reset()
	Fatal("aborted", "", "installation aborted")
	assert.Equal(t, "✖ FATAL [aborted] installation aborted\n", buf.String())

	buf.Reset()
	Fatal("stage", "pacstrap", "command failed: pacstrap -K /mnt base (exit status 1)\nerror: failed retrieving file\n\nerror: failed to commit transaction\n")
	assert.Equal(t, "✖ FATAL [stage] pacstrap: command failed: pacstrap -K /mnt base (exit status 1)\n"+
		"    error: failed retrieving file\n"+
		"    error: failed to commit transaction\n", buf.String())
}
