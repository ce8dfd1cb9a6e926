package preflight

import (
	"context"
	"errors"
	"testing"

	"archsetup/internal/config"
	ierrors "archsetup/internal/errors"
	"archsetup/internal/sysinfo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gib = int64(1) << 30

func stubHost(t *testing.T, euid int, uefi, tty bool, disks []sysinfo.Disk, disksErr error) {
	t.Helper()
	originalEuid, originalUEFI, originalTTY, originalDisks := geteuid, isUEFI, stdinIsTerminal, sysinfo.Disks
	t.Cleanup(func() {
		geteuid, isUEFI, stdinIsTerminal, sysinfo.Disks = originalEuid, originalUEFI, originalTTY, originalDisks
	})
	geteuid = func() int { return euid }
	isUEFI = func() bool { return uefi }
	stdinIsTerminal = func() bool { return tty }
	sysinfo.Disks = func(context.Context) ([]sysinfo.Disk, error) { return disks, disksErr }
}

func settings() *config.Settings {
	return &config.Settings{MinDiskSize: "32G"}
}

func TestRun(t *testing.T) {
	good := []sysinfo.Disk{{Path: "/dev/sda", Size: 64 * gib}}

	tests := []struct {
		name     string
		euid     int
		uefi     bool
		tty      bool
		disks    []sysinfo.Disk
		disksErr error
		wantOp   string
		wantMsg  string
	}{
		{name: "all met", euid: 0, uefi: true, tty: true, disks: good},
		{name: "not root", euid: 1000, uefi: true, tty: true, disks: good, wantOp: "root", wantMsg: "must run as root"},
		{name: "bios boot", euid: 0, uefi: false, tty: true, disks: good, wantOp: "uefi", wantMsg: "UEFI"},
		{name: "piped stdin", euid: 0, uefi: true, tty: false, disks: good, wantOp: "terminal", wantMsg: "not a terminal"},
		{name: "only small disks", euid: 0, uefi: true, tty: true,
			disks:  []sysinfo.Disk{{Path: "/dev/sda", Size: 16 * gib}},
			wantOp: "disk", wantMsg: "at least 32.0 GiB"},
		{name: "lsblk fails", euid: 0, uefi: true, tty: true, disksErr: errors.New("lsblk: not found"),
			wantOp: "disk", wantMsg: "cannot list disks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubHost(t, tt.euid, tt.uefi, tt.tty, tt.disks, tt.disksErr)

			err := Run(context.Background(), settings())
			if tt.wantOp == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, ierrors.KindPrecondition, ierrors.KindOf(err))
			op, msg := ierrors.Diagnostic(err)
			assert.Equal(t, tt.wantOp, op)
			assert.Contains(t, msg, tt.wantMsg)
		})
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	stubHost(t, 1000, false, false, nil, nil)
	listed := false
	sysinfo.Disks = func(context.Context) ([]sysinfo.Disk, error) {
		listed = true
		return nil, nil
	}

	err := Run(context.Background(), settings())
	require.Error(t, err)
	op, _ := ierrors.Diagnostic(err)
	assert.Equal(t, "root", op)
	assert.False(t, listed)
}

func TestEligible(t *testing.T) {
	disks := []sysinfo.Disk{
		{Path: "/dev/sda", Size: 64 * gib},
		{Path: "/dev/sdb", Size: 64 * gib, ReadOnly: true},
		{Path: "/dev/sdc", Size: 31 * gib},
		{Path: "/dev/nvme0n1", Size: 32 * gib},
	}
	got := Eligible(disks, 32*gib)
	require.Len(t, got, 2)
	assert.Equal(t, "/dev/sda", got[0].Path)
	assert.Equal(t, "/dev/nvme0n1", got[1].Path)
}
