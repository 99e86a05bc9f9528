package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sarchlab/atapio/script"
	"github.com/sarchlab/atapio/simulation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newEngine(cmd *cobra.Command, s *simulation.Simulation) *script.Engine {
	return script.NewEngine(s.Channel(), s.Bus()).
		WithContext(cmd.Context()).
		WithOutput(cmd.OutOrStdout())
}

func newRunCmd(opts *options) *cobra.Command {
	var code string

	runCmd := &cobra.Command{
		Use:   "run [FILE]",
		Short: "Run a Lua script against the channel.",
		Long: "Run a Lua script against the channel. The script can use " +
			"the ata table (read_sectors, write_sectors, identify, flush, " +
			"reset, stats) and the port table (inb, outb, inw, outw).",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (code == "") == (len(args) == 0) {
				return errors.New("give either a file or -e")
			}

			return opts.withSimulation(cmd, func(s *simulation.Simulation) error {
				engine := newEngine(cmd, s)
				defer engine.Close()

				if code != "" {
					return engine.DoString(code)
				}

				return engine.DoFile(args[0])
			})
		},
	}

	runCmd.Flags().StringVarP(&code, "execute", "e", "",
		"Lua code to run instead of a file")

	return runCmd
}

func newShellCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive Lua shell.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSimulation(cmd, func(s *simulation.Simulation) error {
				if f, ok := cmd.InOrStdin().(*os.File); ok &&
					term.IsTerminal(int(f.Fd())) {
					return terminalShell(cmd, s, int(f.Fd()))
				}

				engine := newEngine(cmd, s)
				defer engine.Close()

				return lineShell(engine, cmd.InOrStdin(), cmd.ErrOrStderr())
			})
		},
	}
}

// lineShell runs every line of in as a chunk. Errors are reported and the
// shell goes on.
func lineShell(engine *script.Engine, in io.Reader, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "exit" || line == "quit" {
			return nil
		}

		if err := engine.DoString(line); err != nil {
			fmt.Fprintln(errOut, err)
		}
	}

	return scanner.Err()
}

func terminalShell(cmd *cobra.Command, s *simulation.Simulation, fd int) error {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	screen := struct {
		io.Reader
		io.Writer
	}{cmd.InOrStdin(), cmd.OutOrStdout()}
	t := term.NewTerminal(screen, "atapio> ")

	engine := script.NewEngine(s.Channel(), s.Bus()).
		WithContext(cmd.Context()).
		WithOutput(t)
	defer engine.Close()

	for {
		line, err := t.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			return nil
		}

		if line == "" {
			continue
		}

		if err := engine.DoString(line); err != nil {
			fmt.Fprintln(t, err)
		}
	}
}
