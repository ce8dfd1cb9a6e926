package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"archsetup/internal/config"
	"archsetup/internal/runner/runnertest"
	"archsetup/internal/sysinfo"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const (
	gib      = int64(1) << 30
	mib      = int64(1) << 20
	rootUUID = "0f3c1c8e-7a51-4a4e-9d7e-1b2f6f0c9e11"
)

// executeCommand is a helper function to execute a cobra command and capture its output.
func executeCommand(root *cobra.Command, input string, args ...string) (string, error) {
	_, output, err := executeCommandC(root, input, args...)
	return output, err
}

func executeCommandC(root *cobra.Command, input string, args ...string) (*cobra.Command, string, error) {
	// Capture Cobra's output
	cobraBuf := new(bytes.Buffer)
	root.SetOut(cobraBuf)
	root.SetErr(cobraBuf)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)

	// Redirect color library output to the same buffer
	originalColorOutput := color.Output
	color.Output = cobraBuf
	defer func() { color.Output = originalColorOutput }()

	// Capture direct stdout/stderr writes
	oldStdout := os.Stdout
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stdout = w
	os.Stderr = w

	c, err := root.ExecuteC()

	// Restore stdout/stderr and read from the pipe
	w.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	capturedBuf := new(bytes.Buffer)
	io.Copy(capturedBuf, r)

	return c, cobraBuf.String() + capturedBuf.String(), err
}

func TestMain(m *testing.M) {
	// Save original functions
	originalConfigNew := config.New
	originalRunPreflight := runPreflight
	originalNewSession := newSession
	originalDisks := sysinfo.Disks
	originalIsBlockDevice := sysinfo.IsBlockDevice
	originalDeviceSize := sysinfo.DeviceSize
	originalChrootRoot := chrootRoot
	originalNoColor := color.NoColor

	color.NoColor = true

	code := m.Run()

	config.New = originalConfigNew
	runPreflight = originalRunPreflight
	newSession = originalNewSession
	sysinfo.Disks = originalDisks
	sysinfo.IsBlockDevice = originalIsBlockDevice
	sysinfo.DeviceSize = originalDeviceSize
	chrootRoot = originalChrootRoot
	color.NoColor = originalNoColor

	os.Exit(code)
}

// testEnv is the fake host a command test runs against.
type testEnv struct {
	settings *config.Settings
	rec      *runnertest.Recorder
}

// setupMocks resets all mocks to a healthy UEFI host with one 64 GiB disk and
// settings rooted in temporary directories.
func setupMocks(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()

	zoneinfo := filepath.Join(tmp, "zoneinfo")
	require.NoError(t, os.MkdirAll(filepath.Join(zoneinfo, "Europe"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(zoneinfo, "Europe", "London"), []byte("TZif2"), 0644))

	s := &config.Settings{
		MountRoot:        filepath.Join(tmp, "mnt"),
		LogDir:           filepath.Join(tmp, "log"),
		ZoneinfoDir:      zoneinfo,
		MinDiskSize:      "32G",
		EFISize:          "512M",
		EFIMinMiB:        256,
		EFIMaxMiB:        1024,
		PartitionTimeout: time.Second,
		AURHelper:        "",
		Packages: config.Packages{
			Base:    []string{"base", "linux"},
			Desktop: []string{"hyprland"},
		},
	}
	config.New = func(string) (*config.Settings, error) { return s, nil }
	runPreflight = func(context.Context, *config.Settings) error { return nil }
	newSession = func() string { return "session-1" }
	sysinfo.Disks = func(context.Context) ([]sysinfo.Disk, error) {
		return []sysinfo.Disk{{Path: "/dev/sda", Size: 64 * gib, Model: "QEMU HARDDISK"}}, nil
	}
	sysinfo.IsBlockDevice = func(string) bool { return true }
	sysinfo.DeviceSize = func(_ context.Context, device string) (int64, error) {
		if device == "/dev/sda1" {
			return 512 * mib, nil
		}
		return 64 * gib, nil
	}
	chrootRoot = "/"

	verbosity, configPath = 0, ""
	planFilesystem, planBootloader, planDisk = "ext4", "systemd-boot", "/dev/sda"
	payloadPath, logDir = "/root/archsetup/handoff.yaml", ""
	rootCmd.SetContext(context.Background())

	return &testEnv{settings: s, rec: runnertest.New().Install(t)}
}
