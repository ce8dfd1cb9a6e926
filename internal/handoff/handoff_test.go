package handoff

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archsetup/internal/config"
	ierrors "archsetup/internal/errors"
	"archsetup/internal/installcfg"
	"archsetup/internal/runner/runnertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	hashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func testConfig() installcfg.InstallConfig {
	return installcfg.InstallConfig{
		Keymap:     "uk",
		Timezone:   "Europe/London",
		Locale:     "en_GB.UTF-8",
		Hostname:   "archbox",
		Username:   "alex",
		Password:   "abcdef",
		Filesystem: installcfg.Btrfs,
		Bootloader: installcfg.SystemdBoot,
		Disk:       "/dev/nvme0n1",
		Partitions: installcfg.DerivePartitions("/dev/nvme0n1"),
	}
}

func testSettings() *config.Settings {
	return &config.Settings{
		AURHelper: "yay",
		Packages:  config.Packages{Desktop: []string{"hyprland", "waybar"}},
	}
}

func newPayload(t *testing.T) *Payload {
	t.Helper()
	p, err := New(testConfig(), "0f3c1c8e-7a51-4a4e-9d7e-1b2f6f0c9e11", "session-1", testSettings())
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	p := newPayload(t)

	assert.Equal(t, Version, p.Version)
	assert.Equal(t, "/dev/nvme0n1p1", p.EFIPartition)
	assert.Equal(t, "/dev/nvme0n1p2", p.RootPartition)
	assert.Equal(t, []string{"hyprland", "waybar"}, p.DesktopPackages)
	assert.NotContains(t, p.PasswordHash, "abcdef")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("abcdef")))
}

func TestNewRejectsMissingUUID(t *testing.T) {
	_, err := New(testConfig(), "", "session-1", testSettings())
	assert.ErrorContains(t, err, "root_uuid")
}

func TestNewPasswordLengths(t *testing.T) {
	cfg := testConfig()
	cfg.Password = strings.Repeat("a", 72)
	p, err := New(cfg, "0f3c1c8e-7a51-4a4e-9d7e-1b2f6f0c9e11", "session-1", testSettings())
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(cfg.Password)))

	cfg.Password = strings.Repeat("a", 73)
	_, err = New(cfg, "0f3c1c8e-7a51-4a4e-9d7e-1b2f6f0c9e11", "session-1", testSettings())
	assert.ErrorContains(t, err, "at most 72 bytes")
	assert.NoError(t, installcfg.ValidatePasswordLength(strings.Repeat("a", 72)))
}

func writeFakeBinary(t *testing.T) {
	t.Helper()
	exe := filepath.Join(t.TempDir(), "archsetup")
	require.NoError(t, os.WriteFile(exe, []byte("ELF"), 0755))
	original := executable
	executable = func() (string, error) { return exe, nil }
	t.Cleanup(func() { executable = original })
}

func TestWriteReadRoundTrip(t *testing.T) {
	writeFakeBinary(t)
	root := t.TempDir()
	p := newPayload(t)

	require.NoError(t, Write(root, p))

	payloadFile := filepath.Join(root, PayloadPath)
	info, err := os.Stat(payloadFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	bin, err := os.Stat(filepath.Join(root, BinaryPath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), bin.Mode().Perm())

	data, err := os.ReadFile(payloadFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdef")
	for _, key := range requiredKeys {
		assert.Contains(t, string(data), key+":")
	}

	got, err := Read(payloadFile)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	cfg := got.Config()
	want := testConfig()
	want.Password = ""
	assert.Equal(t, want, cfg)
}

func writePayload(t *testing.T, mutate func(m map[string]any)) string {
	t.Helper()
	data, err := yaml.Marshal(newPayload(t))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, yaml.Unmarshal(data, &m))
	mutate(m)
	data, err = yaml.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "handoff.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestReadRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
		want   string
	}{
		{"missing root_uuid", func(m map[string]any) { delete(m, "root_uuid") }, "missing keys: [root_uuid]"},
		{"missing optional key", func(m map[string]any) { delete(m, "wallpaper_url") }, "wallpaper_url"},
		{"unknown key", func(m map[string]any) { m["luks_passphrase"] = "x" }, "luks_passphrase"},
		{"empty hostname", func(m map[string]any) { m["hostname"] = "" }, "hostname"},
		{"unknown filesystem", func(m map[string]any) { m["filesystem"] = "zfs" }, "unsupported filesystem"},
		{"unknown bootloader", func(m map[string]any) { m["bootloader"] = "refind" }, "unsupported bootloader"},
		{"old version", func(m map[string]any) { m["version"] = 0 }, "version 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(writePayload(t, tt.mutate))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ierrors.KindHandoff, ierrors.KindOf(err))
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ierrors.KindHandoff, ierrors.KindOf(err))
}

func TestVerifyPartitions(t *testing.T) {
	p := newPayload(t)
	assert.NoError(t, p.VerifyPartitions())

	p.EFIPartition, p.RootPartition = "/dev/nvme0n11", "/dev/nvme0n12"
	err := p.VerifyPartitions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/nvme0n1p1")
	assert.Equal(t, ierrors.KindHandoff, ierrors.KindOf(err))
}

func TestInvoke(t *testing.T) {
	rec := runnertest.New().Install(t)

	require.NoError(t, Invoke(context.Background(), "/mnt", "-v"))
	require.Len(t, rec.Calls, 1)
	assert.True(t, rec.Calls[0].Streamed)
	assert.Equal(t, "arch-chroot /mnt /usr/local/bin/archsetup chroot --payload /root/archsetup/handoff.yaml -v", rec.Calls[0].Line())
}

func TestInvokeFailureIsOneHandoffError(t *testing.T) {
	runnertest.New().Install(t).Fail("arch-chroot", "==> bootloader failed")

	err := Invoke(context.Background(), "/mnt")
	require.Error(t, err)
	assert.Equal(t, ierrors.KindHandoff, ierrors.KindOf(err))
	op, msg := ierrors.Diagnostic(err)
	assert.Equal(t, "chroot", op)
	assert.True(t, strings.HasPrefix(msg, "the install inside /mnt failed"))
}

func TestRemove(t *testing.T) {
	writeFakeBinary(t)
	root := t.TempDir()
	require.NoError(t, Write(root, newPayload(t)))

	require.NoError(t, Remove(root))
	_, err := os.Stat(filepath.Join(root, PayloadPath))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, BinaryPath))
	assert.NoError(t, err, "the copied binary stays")

	assert.NoError(t, Remove(root), "removing twice is fine")
}
