// Package cmd provides the command-line interface for atapio.
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/config"
	"github.com/sarchlab/atapio/sim"
	"github.com/sarchlab/atapio/simulation"
	"github.com/spf13/cobra"
)

type options struct {
	envFiles  []string
	drive     string
	traceLog  bool
	logPorts  bool
	uniqueIDs bool

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use: "atapio",
		Short: "atapio reads and writes sectors of a simulated ATA disk " +
			"through PIO port accesses.",
		Long: `atapio runs the PIO driver against a simulated ATA disk. ` +
			`The channel and the disk are configured with ATAPIO_ ` +
			`environment variables, which can also be put in .env files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&opts.envFiles, "env", nil,
		".env files to load, .env if not given")
	flags.StringVar(&opts.drive, "drive", "",
		"drive to access, master or slave")
	flags.BoolVar(&opts.traceLog, "trace-log", false,
		"print every channel operation")
	flags.BoolVar(&opts.logPorts, "log-ports", false,
		"print every port access except the data port")
	flags.BoolVar(&opts.uniqueIDs, "unique-ids", false,
		"trace with globally unique task IDs instead of counting from 1")

	rootCmd.AddCommand(
		newReadCmd(opts),
		newWriteCmd(opts),
		newIdentifyCmd(opts),
		newFlushCmd(opts),
		newRunCmd(opts),
		newShellCmd(opts),
		newServeCmd(opts),
		newTraceCmd(opts),
	)

	return rootCmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("drive") {
		cfg.Drive, err = ata.ParseDrive(o.drive)
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("log-ports") {
		cfg.LogPorts = o.logPorts
	}

	if o.uniqueIDs {
		sim.UseParallelIDGenerator()
	}

	o.cfg = cfg

	return nil
}

func (o *options) builder(cmd *cobra.Command) simulation.Builder {
	b := simulation.MakeBuilder().WithConfig(o.cfg)

	if o.traceLog {
		b = b.WithTraceLog()
	}

	if cmd.Name() != "serve" {
		b = b.WithoutMonitoring()
	}

	return b
}

func (o *options) simulation(cmd *cobra.Command) (*simulation.Simulation, error) {
	return o.builder(cmd).Build("atapio")
}

// withSimulation builds a simulation, runs f, and terminates the simulation.
func (o *options) withSimulation(
	cmd *cobra.Command,
	f func(s *simulation.Simulation) error,
) (err error) {
	s, err := o.simulation(cmd)
	if err != nil {
		return err
	}

	defer func() {
		if termErr := s.Terminate(); err == nil {
			err = termErr
		}
	}()

	return f(s)
}

func parseLBA(s string) (uint64, error) {
	lba, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid LBA %q: %w", s, err)
	}

	return lba, nil
}

func parseCount(s string) (uint16, error) {
	count, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid sector count %q: %w", s, err)
	}

	return uint16(count), nil
}
