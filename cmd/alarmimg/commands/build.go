package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/superfly/fsm"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/internal/config"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/db"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/disk"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/loopback"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/mirror"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/pipeline"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/qemuimg"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/sizes"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/tools"
)

var (
	buildOutput      string
	buildSize        string
	buildMirror      string
	buildFormat      string
	buildForce       bool
	buildPopulate    bool
	buildPreallocate bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an Arch Linux ARM VM disk image",
	RunE:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "alarm.qcow2", "Output image path")
	buildCmd.Flags().StringVarP(&buildSize, "size", "s", "128G", "Virtual disk size, e.g. 64G or 512M")
	buildCmd.Flags().StringVarP(&buildMirror, "mirror", "m", "tsinghua", "Mirror ID for the release tarball")
	buildCmd.Flags().StringVar(&buildFormat, "format", "qcow2", "Output image format")
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "Overwrite existing output without confirmation")
	buildCmd.Flags().BoolVar(&buildPopulate, "populate", false, "Format partitions and unpack the rootfs (requires root)")
	buildCmd.Flags().BoolVar(&buildPreallocate, "preallocate", false, "Preallocate image blocks instead of sparse allocation")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// Validate everything that can fail cheaply before any directory,
	// database, or FSM state is created.
	sizeSpec, err := sizes.Parse(buildSize)
	if err != nil {
		return errors.Wrapf(err, "invalid --size %q", buildSize)
	}
	sizeBytes := sizeSpec.Bytes()
	bootBytes := sizes.MustParse(cfg.BootSize).Bytes()

	if !qemuimg.SupportedFormat(buildFormat) {
		return fmt.Errorf("unsupported format %q (supported: %s)", buildFormat, strings.Join(qemuimg.SupportedFormats(), ", "))
	}

	if _, err := disk.PlanLayout(bootBytes, sizeBytes); err != nil {
		return err
	}

	registry := mirror.NewRegistry(cfg.Mirrors)
	archiveURL, err := registry.Resolve(buildMirror)
	if err != nil {
		return err
	}

	hints := tools.DefaultHints(tools.DetectPlatform())
	for name, hint := range cfg.ToolHints {
		hints[name] = hint
	}
	if err := tools.Check(tools.Required(buildFormat, buildPopulate)).Err(hints); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.DBPath, cfg.FSMDBPath, cfg.WorkDir, cfg.ArchiveDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	fetcher := mirror.NewFetcher(cfg.S3Region, cfg.HTTPRetryMax, slog.Default())

	// Loopback devices only matter when the rootfs gets unpacked.
	var loop loopback.Manager
	if buildPopulate {
		loop, err = loopback.NewManager(cfg.WorkDir)
		if err != nil {
			return errors.Wrap(err, "loopback init failed")
		}
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := pipeline.NewMachine(repo, fetcher, loop, pipeline.NewStdinConfirmer(), slog.Default(), pipeline.Options{
		Hints:            hints,
		DownloadHeadroom: sizes.MustParse(cfg.DownloadHeadroom).Bytes(),
		PopulateHeadroom: sizes.MustParse(cfg.PopulateHeadroom).Bytes(),
	})
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	parsed, err := url.Parse(archiveURL)
	if err != nil {
		return errors.Wrapf(err, "invalid mirror URL %q", archiveURL)
	}
	archivePath := filepath.Join(cfg.ArchiveDir, filepath.Base(parsed.Path))

	req := &pipeline.Request{
		OutputPath:  buildOutput,
		SizeText:    buildSize,
		SizeBytes:   sizeBytes,
		BootBytes:   bootBytes,
		Format:      buildFormat,
		Mirror:      buildMirror,
		ArchiveURL:  archiveURL,
		ArchivePath: archivePath,
		Force:       buildForce,
		Populate:    buildPopulate,
		Preallocate: buildPreallocate,
	}
	resp := &pipeline.Response{}

	version, err := start(ctx, buildOutput, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		// A declined overwrite aborts the machine but is not a failure.
		if ctx.Err() == nil && resp.Status == db.StatusCancelled {
			fmt.Printf("Cancelled: %s\n", resp.ErrorMessage)
			return nil
		}
		return errors.Wrap(err, "build failed")
	}

	slog.Info("build completed",
		"status", resp.Status,
		"image", resp.ImagePath,
		"archive", resp.ArchivePath,
		"partitions", len(resp.Partitions),
	)

	return nil
}
