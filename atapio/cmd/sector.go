package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/simulation"
	"github.com/spf13/cobra"
)

func newReadCmd(opts *options) *cobra.Command {
	var out string

	readCmd := &cobra.Command{
		Use:   "read LBA [COUNT]",
		Short: "Read sectors and print them as a hex dump.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lba, err := parseLBA(args[0])
			if err != nil {
				return err
			}

			count := uint16(1)
			if len(args) == 2 {
				if count, err = parseCount(args[1]); err != nil {
					return err
				}
			}

			return opts.withSimulation(cmd, func(s *simulation.Simulation) error {
				data, err := s.Channel().ReadSectors(
					cmd.Context(), opts.cfg.Drive, lba, count)
				if err != nil {
					return err
				}

				if out != "" {
					return os.WriteFile(out, data, 0o644)
				}

				_, err = fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))

				return err
			})
		},
	}

	readCmd.Flags().StringVarP(&out, "out", "o", "",
		"write the raw sectors into a file instead")

	return readCmd
}

func newWriteCmd(opts *options) *cobra.Command {
	var (
		in    string
		fill  uint8
		count uint16
	)

	writeCmd := &cobra.Command{
		Use:   "write LBA",
		Short: "Write sectors from a file or filled with a byte.",
		Long: "Write sectors from a file or filled with a byte. A file " +
			"that does not end on a sector boundary is padded with zeros.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lba, err := parseLBA(args[0])
			if err != nil {
				return err
			}

			data, err := sectorData(in, fill, count)
			if err != nil {
				return err
			}

			n := uint16(len(data) / ata.SectorSize)

			return opts.withSimulation(cmd, func(s *simulation.Simulation) error {
				err := s.Channel().WriteSectors(
					cmd.Context(), opts.cfg.Drive, lba, n, data)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(),
					"wrote %d sectors at LBA %d\n", n, lba)

				return nil
			})
		},
	}

	writeCmd.Flags().StringVarP(&in, "in", "i", "",
		"file holding the data to write")
	writeCmd.Flags().Uint8Var(&fill, "fill", 0,
		"byte to fill the sectors with when no file is given")
	writeCmd.Flags().Uint16VarP(&count, "count", "n", 1,
		"number of sectors to fill when no file is given")

	return writeCmd
}

func sectorData(in string, fill uint8, count uint16) ([]byte, error) {
	if in == "" {
		data := make([]byte, int(count)*ata.SectorSize)
		for i := range data {
			data[i] = fill
		}

		return data, nil
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return nil, err
	}

	if rem := len(data) % ata.SectorSize; rem != 0 {
		data = append(data, make([]byte, ata.SectorSize-rem)...)
	}

	if len(data)/ata.SectorSize > 0xffff {
		return nil, fmt.Errorf("%s is larger than 65535 sectors", in)
	}

	return data, nil
}

func newIdentifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Print what the drive reports about itself.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSimulation(cmd, func(s *simulation.Simulation) error {
				id, err := s.Channel().Identify(cmd.Context(), opts.cfg.Drive)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Model:    %s\n", id.Model)
				fmt.Fprintf(w, "Serial:   %s\n", id.Serial)
				fmt.Fprintf(w, "Firmware: %s\n", id.Firmware)
				fmt.Fprintf(w, "LBA48:    %t\n", id.LBA48)
				fmt.Fprintf(w, "Sectors:  %d\n", id.Sectors())
				fmt.Fprintf(w, "Capacity: %d bytes\n", id.Capacity())

				return nil
			})
		},
	}
}

func newFlushCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Flush the write cache of the drive.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSimulation(cmd, func(s *simulation.Simulation) error {
				err := s.Channel().Flush(cmd.Context(), opts.cfg.Drive)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "flushed %s\n", opts.cfg.Drive)

				return nil
			})
		},
	}
}
