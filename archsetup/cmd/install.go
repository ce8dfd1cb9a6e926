package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"archsetup/internal/config"
	ierrors "archsetup/internal/errors"
	"archsetup/internal/installcfg"
	"archsetup/internal/log"
	"archsetup/internal/plan"
	"archsetup/internal/preflight"
	"archsetup/internal/prompt"
	"archsetup/internal/receipt"
	"archsetup/internal/stage"
	"archsetup/internal/util"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	// runPreflight is a variable to allow mocking of preflight.Run in tests
	runPreflight = preflight.Run
	// newSession is a variable to allow mocking of uuid.NewString in tests
	newSession = uuid.NewString
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Interactively installs Arch Linux onto a disk",
	Long: `Checks the live system, asks for the install settings, shows a summary and
erases the chosen disk only after the literal answer YES. The base system is
installed from the live system; the rest of the install continues inside the
new root and the results of both halves are reported at the end.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runInstall(ctx, cmd)
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(ctx context.Context, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	s, err := config.New(configPath)
	if err != nil {
		return ierrors.K(ierrors.KindPrecondition, "config", err)
	}
	if err := runPreflight(ctx, s); err != nil {
		return err
	}

	session := newSession()
	closer, err := log.Setup(s.LogDir, verbosity, session)
	if err != nil {
		return ierrors.K(ierrors.KindPrecondition, "log", err)
	}
	defer closer.Close()
	defer log.Reset()
	log.Title("archsetup (session %s)", session)

	p := prompt.New(cmd.InOrStdin(), out)
	collector := &installcfg.Collector{Prompt: p, Settings: s, Out: out}
	cfg, err := collector.Collect(ctx)
	if err != nil {
		return err
	}

	log.Step("Summary")
	installcfg.WriteSummary(out, cfg)
	if err := installcfg.ConfirmDestructive(p, cfg); err != nil {
		return err
	}

	env := &plan.Pre{
		Config:    cfg,
		Settings:  s,
		Session:   session,
		InnerArgs: innerArgs(s),
	}
	stages, err := plan.PreHandoff(env)
	if err != nil {
		return err
	}
	log.Debug("pre-handoff plan: %s", plan.Names(stages))

	runner := stage.NewRunner(p.YesNo)
	runErr := runner.RunAll(ctx, stages)

	log.Step("Report")
	runner.WriteReport(out)
	if runErr != nil {
		return runErr
	}

	inner, err := receipt.Load(s.MountRoot)
	if err != nil {
		log.Warn("no receipt from inside the new root: %v", err)
	} else {
		fmt.Fprintln(out)
		stage.WriteOutcomes(out, inner.Stages)
	}
	keepLiveLog(s)

	log.Info("Installation complete. Run 'umount -R %s' and reboot.", s.MountRoot)
	return nil
}

// innerArgs are the flags the inner run needs beyond the payload.
func innerArgs(s *config.Settings) []string {
	args := []string{"--log-dir", s.LogDir}
	if verbosity > 0 {
		args = append(args, "-"+strings.Repeat("v", verbosity))
	}
	return args
}

// keepLiveLog copies the live-system log into the new root next to the inner
// run's log, since the live system's copy is lost on reboot.
func keepLiveLog(s *config.Settings) {
	src := filepath.Join(s.LogDir, log.FileName)
	dst := filepath.Join(s.MountRoot, s.LogDir, "archsetup-live.log")
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		log.Warn("could not keep the live log: %v", err)
		return
	}
	if err := util.CopyFile(src, dst, 0600); err != nil {
		log.Warn("could not keep the live log: %v", err)
	}
}
