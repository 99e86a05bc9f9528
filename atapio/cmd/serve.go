package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sarchlab/atapio/simulation"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		port        int
		openBrowser bool
		scan        bool
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the monitor until interrupted.",
		Long: "Serve the monitor until interrupted. With --scan, every " +
			"sector of the drive is read once and the progress is shown " +
			"by the monitor.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				opts.cfg.MonitorPort = port
			}

			b := opts.builder(cmd).WithMonitoring()
			if openBrowser {
				b = b.WithBrowser()
			}

			s, err := b.Build("atapio")
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Terminate(); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "monitor listening on port %d\n",
				s.MonitorPort())

			if scan {
				if err := surfaceScan(ctx, cmd, s); err != nil {
					return err
				}
			}

			<-ctx.Done()

			return nil
		},
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", 0,
		"port of the monitor, random if not given")
	serveCmd.Flags().BoolVar(&openBrowser, "browser", false,
		"open the monitor in a web browser")
	serveCmd.Flags().BoolVar(&scan, "scan", false,
		"read every sector of the drive once")

	return serveCmd
}

// surfaceScan reads the whole drive, 256 sectors at a time. Unreadable
// chunks are counted and skipped.
func surfaceScan(
	ctx context.Context,
	cmd *cobra.Command,
	s *simulation.Simulation,
) error {
	const chunk = 256

	drive := s.Config().Drive
	total := s.Config().Capacity
	bar := s.GetMonitor().CreateProgressBar("surface scan", total)
	defer s.GetMonitor().CompleteProgressBar(bar)

	bad := 0
	for lba := uint64(0); lba < total; lba += chunk {
		n := uint64(chunk)
		if total-lba < n {
			n = total - lba
		}

		bar.IncrementInProgress(n)

		_, err := s.Channel().ReadSectors(ctx, drive, lba, uint16(n))
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			bad++
			fmt.Fprintf(cmd.ErrOrStderr(), "LBA %d: %v\n", lba, err)
			bar.MoveInProgressToFailed(n)

			continue
		}

		bar.MoveInProgressToFinished(n)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d sectors, %d bad chunks\n",
		total, bad)

	return nil
}
