package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/internal/config"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/db"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/qemuimg"
)

var (
	cleanupAll      bool
	cleanupArchives bool
	cleanupFailed   bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up build artifacts (archives, failed builds, staging files)",
	Long: `Clean up artifacts left behind by builds:
  --archives   Remove downloaded release archives recorded in the database
  --failed     Remove failed and cancelled builds and their image files
  --all        Both of the above`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean archives and failed builds")
	cleanupCmd.Flags().BoolVar(&cleanupArchives, "archives", false, "Remove downloaded archives")
	cleanupCmd.Flags().BoolVar(&cleanupFailed, "failed", false, "Remove failed and cancelled builds")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupAll && !cleanupArchives && !cleanupFailed {
		return fmt.Errorf("must specify --archives, --failed, or --all")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.DBPath, "", "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	if cleanupAll || cleanupArchives {
		if err := cleanupArchiveFiles(repo); err != nil {
			return err
		}
	}

	if cleanupAll || cleanupFailed {
		if err := cleanupFailedBuilds(repo); err != nil {
			return err
		}
	}

	return nil
}

func cleanupArchiveFiles(repo *db.Repository) error {
	builds, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	seen := make(map[string]bool)
	removed := 0

	for _, b := range builds {
		if b.ArchivePath == "" || seen[b.ArchivePath] {
			continue
		}
		seen[b.ArchivePath] = true

		if _, err := os.Stat(b.ArchivePath); err != nil {
			continue
		}
		if err := os.Remove(b.ArchivePath); err != nil {
			fmt.Printf("⚠️  Failed to remove archive %s: %v\n", b.ArchivePath, err)
			continue
		}
		fmt.Printf("🗑️  Removed archive: %s\n", b.ArchivePath)
		removed++
	}

	fmt.Printf("✅ Removed %d archives\n", removed)
	return nil
}

func cleanupFailedBuilds(repo *db.Repository) error {
	builds, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	cleaned := 0

	for _, b := range builds {
		if b.Status != db.StatusFailed && b.Status != db.StatusCancelled {
			continue
		}

		// The file at the output path only belongs to the build once
		// fetching completed; a cancelled build may point at a
		// pre-existing image the user declined to overwrite, so those
		// keep their output.
		if b.Status == db.StatusFailed && b.ArchivePath != "" {
			removeFile(b.OutputPath)
		}
		if b.Format != qemuimg.FormatRaw {
			removeFile(b.OutputPath + ".raw")
		}

		if err := repo.Delete(b.ID); err != nil {
			fmt.Printf("⚠️  Failed to delete record %s: %v\n", b.OutputPath, err)
			continue
		}
		fmt.Printf("✅ Cleaned: %s\n", b.OutputPath)
		cleaned++
	}

	fmt.Printf("✅ Removed %d failed builds\n", cleaned)
	return nil
}

func removeFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		fmt.Printf("⚠️  Failed to remove %s: %v\n", path, err)
		return
	}
	fmt.Printf("🗑️  Removed: %s\n", path)
}
