package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/internal/config"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/mirror"
)

var mirrorsCmd = &cobra.Command{
	Use:   "mirrors",
	Short: "List known release mirrors",
	RunE:  runMirrors,
}

func init() {
	rootCmd.AddCommand(mirrorsCmd)
}

func runMirrors(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	registry := mirror.NewRegistry(cfg.Mirrors)
	for _, id := range registry.IDs() {
		url, err := registry.Resolve(id)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %s\n", id, url)
	}

	return nil
}
