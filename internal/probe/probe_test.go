package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"archsetup/internal/runner/runnertest"
	"archsetup/internal/sysinfo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "grubx64.efi")
	require.NoError(t, os.WriteFile(file, []byte("efi"), 0644))
	link := filepath.Join(dir, "localtime")
	require.NoError(t, os.Symlink("/usr/share/zoneinfo/UTC", link))

	tests := []struct {
		name string
		path string
		kind Kind
		ok   bool
	}{
		{"regular file", file, File, true},
		{"directory", dir, Dir, true},
		{"directory is not a file", dir, File, false},
		{"file is not a directory", file, Dir, false},
		{"dangling symlink", link, Symlink, true},
		{"missing", filepath.Join(dir, "absent"), File, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Exists(tt.path, tt.kind)
			assert.Equal(t, tt.ok, r.OK, r.Diagnostic)
			assert.Contains(t, r.Check, tt.path)
			if !tt.ok {
				assert.Contains(t, r.Diagnostic, tt.path)
			}
		})
	}
}

func TestExistsBlockDevice(t *testing.T) {
	original := sysinfo.IsBlockDevice
	t.Cleanup(func() { sysinfo.IsBlockDevice = original })
	sysinfo.IsBlockDevice = func(path string) bool { return path == "/dev/sda1" }

	assert.True(t, Exists("/dev/sda1", BlockDevice).OK)

	r := Exists("/dev/sda2", BlockDevice)
	assert.False(t, r.OK)
	assert.Equal(t, "/dev/sda2 is not a block device", r.Diagnostic)
}

func TestBounds(t *testing.T) {
	tests := []struct {
		name     string
		measured int64
		ok       bool
		diag     string
	}{
		{"default efi size", 512 << 20, true, ""},
		{"lower edge", 256 << 20, true, ""},
		{"upper edge", 1024 << 20, true, ""},
		{"too small", 100 << 20, false, "EFI partition is 100 MiB, expected between 256 and 1024 MiB"},
		{"too large", 2048 << 20, false, "EFI partition is 2048 MiB, expected between 256 and 1024 MiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Bounds("EFI partition", tt.measured, 256, 1024, MiB)
			assert.Equal(t, tt.ok, r.OK)
			assert.Equal(t, tt.diag, r.Diagnostic)
		})
	}
}

func TestBoundsWithoutUpperLimit(t *testing.T) {
	r := Bounds("disk", 16<<30, 32, 0, GiB)
	assert.False(t, r.OK)
	assert.Equal(t, "disk is 16 GiB, expected at least 32 GiB", r.Diagnostic)

	assert.True(t, Bounds("disk", 2<<40, 32, 0, GiB).OK)
}

func TestCommandSucceeds(t *testing.T) {
	rec := runnertest.New().Install(t)
	rec.Fail("findmnt /mnt/boot", "findmnt: nothing mounted")

	assert.True(t, CommandSucceeds(context.Background(), "findmnt", "/mnt").OK)

	r := CommandSucceeds(context.Background(), "findmnt", "/mnt/boot")
	assert.False(t, r.OK)
	assert.Equal(t, "findmnt /mnt/boot succeeds", r.Check)
	assert.Contains(t, r.Diagnostic, "nothing mounted")
}

func TestListed(t *testing.T) {
	rec := runnertest.New().Install(t)
	rec.Respond("pacman --root /mnt -Qq", "base\nlinux\nlinux-firmware\n")
	rec.Respond("blkid -s TYPE -o value /dev/sda2", "ext4\n")

	ctx := context.Background()
	assert.True(t, Listed(ctx, []string{"base", "linux"}, "pacman", "--root", "/mnt", "-Qq").OK)

	r := Listed(ctx, []string{"base", "hyprland", "waybar"}, "pacman", "--root", "/mnt", "-Qq")
	assert.False(t, r.OK)
	assert.Equal(t, "missing hyprland, waybar (found base linux linux-firmware)", r.Diagnostic)

	r = Listed(ctx, []string{"btrfs"}, "blkid", "-s", "TYPE", "-o", "value", "/dev/sda2")
	assert.False(t, r.OK)
	assert.Contains(t, r.Diagnostic, "found ext4")
}

func TestListedPartialWord(t *testing.T) {
	runnertest.New().Install(t).Respond("pacman -Qq", "linux-firmware\n")

	r := Listed(context.Background(), []string{"linux"}, "pacman", "-Qq")
	assert.False(t, r.OK, "a token must match a whole word")
}

func TestFileContains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fstab")
	require.NoError(t, os.WriteFile(path, []byte("UUID=abcd / ext4 rw 0 1\n"), 0644))

	assert.True(t, FileContains(path, "UUID=abcd").OK)
	assert.False(t, FileContains(path, "UUID=ffff").OK)
	assert.False(t, FileContains(filepath.Join(filepath.Dir(path), "absent"), "x").OK)
}
