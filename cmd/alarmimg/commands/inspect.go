package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/disk"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/qemuimg"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image-path>",
	Short: "Show the partition table of a disk image",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	if _, err := os.Stat(imagePath); err != nil {
		return errors.Wrapf(err, "cannot read %s", imagePath)
	}

	parts, err := disk.ReadPartitions(imagePath)
	if err == nil {
		fmt.Printf("%-4s %-24s %-38s %-10s %-10s\n", "NUM", "NAME", "TYPE", "START", "SIZE")
		for _, p := range parts {
			fmt.Printf("%-4d %-24s %-38s %-10d %-10s\n",
				p.Index, p.Name, p.Type, p.Start, humanize.IBytes(p.Size))
		}
		return nil
	}

	// Container formats like qcow2 carry no readable GPT at offset zero,
	// so fall back to qemu-img for those.
	info, qerr := qemuimg.Info(cmd.Context(), imagePath)
	if qerr != nil {
		return errors.Wrap(err, "inspect image")
	}
	fmt.Println(info)
	return nil
}
