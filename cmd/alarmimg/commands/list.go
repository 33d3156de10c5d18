package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/internal/config"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/db"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all builds and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.DBPath, "", "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	builds, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(builds) == 0 {
		fmt.Println("No builds found")
		return nil
	}

	fmt.Printf("%-32s %-12s %-8s %-10s %-10s %-20s\n", "OUTPUT", "STATUS", "SIZE", "FORMAT", "MIRROR", "CREATED")
	fmt.Println("------------------------------------------------------------------------------------------------")

	for _, b := range builds {
		mirrorID := b.Mirror
		if mirrorID == "" {
			mirrorID = "-"
		}

		fmt.Printf("%-32s %-12s %-8s %-10s %-10s %-20s\n",
			b.OutputPath, b.Status, b.SizeSpec, b.Format, mirrorID, b.CreatedAt)

		if b.Status == db.StatusFailed && b.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", b.ErrorMessage)
		}
	}

	return nil
}
