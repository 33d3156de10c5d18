package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/superfly/fsm"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/db"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/disk"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/loopback"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/mirror"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/qemuimg"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/space"
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/tools"
)

// Fetcher retrieves the root filesystem archive.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, dest string) (*mirror.FetchResult, error)
}

// Options carries the tunables for a Machine.
type Options struct {
	// Hints maps tool names to install commands for MissingError text.
	Hints map[string]string

	// DownloadHeadroom is the free space required before fetching.
	DownloadHeadroom uint64

	// PopulateHeadroom is the free space required before populating.
	PopulateHeadroom uint64
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo    *db.Repository
	fetcher Fetcher
	loop    loopback.Manager
	confirm Confirmer
	log     *slog.Logger
	opts    Options
}

// NewMachine creates a new FSM machine with dependencies. loop may be nil
// when partition population was not requested.
func NewMachine(repo *db.Repository, fetcher Fetcher, loop loopback.Manager, confirm Confirmer, log *slog.Logger, opts Options) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		repo:    repo,
		fetcher: fetcher,
		loop:    loop,
		confirm: confirm,
		log:     log,
		opts:    opts,
	}
}

// fail records the failure on the build record and the response, then
// aborts the machine. Failures are terminal: re-running build is the only
// retry. An interrupted run is recorded as cancelled, not failed.
func (m *Machine) fail(ctx context.Context, resp *Response, err error) error {
	status := db.StatusFailed
	if ctx.Err() != nil {
		status = db.StatusCancelled
	}

	resp.Status = status
	resp.ErrorMessage = err.Error()

	if resp.BuildID != 0 {
		if uerr := m.repo.UpdateStatus(resp.BuildID, status, err.Error()); uerr != nil {
			m.log.Error("status_update_failed", "build_id", resp.BuildID, "status", status, "error", uerr)
		}
	}

	return fsm.Abort(err)
}

// workingImagePath returns the raw image the pipeline operates on: the
// output itself for raw builds, a staging file beside it otherwise.
func workingImagePath(r *Request) string {
	if r.Format == qemuimg.FormatRaw {
		return r.OutputPath
	}
	return r.OutputPath + ".raw"
}

// handlePreflight re-checks required tools and creates or resets the build
// record. The tool check also ran in the command, but a resumed machine
// starts here without that, so the state owns its own precondition.
func (m *Machine) handlePreflight(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_preflight", "output_path", req.Msg.OutputPath)

	resp := req.W.Msg
	if resp == nil {
		resp = &Response{}
	}

	if err := tools.Check(tools.Required(req.Msg.Format, req.Msg.Populate)).Err(m.opts.Hints); err != nil {
		m.log.Error("required_tools_missing", "error", err)
		return nil, fsm.Abort(err)
	}

	build, err := m.repo.GetByOutputPath(req.Msg.OutputPath)
	if err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "database error"))
	}

	if build != nil {
		// A re-run for the same output path reuses the record. Archive
		// fields are kept so the fetch skip stays visible in the history.
		build.Format = req.Msg.Format
		build.SizeSpec = req.Msg.SizeText
		build.SizeBytes = int64(req.Msg.SizeBytes)
		build.Mirror = req.Msg.Mirror
		build.Status = db.StatusPending
		build.ErrorMessage = ""
		if err := m.repo.Update(build); err != nil {
			return nil, fsm.Abort(errors.Wrap(err, "failed to reset build record"))
		}
		m.log.Info("build_record_reset", "output_path", req.Msg.OutputPath, "build_id", build.ID)
	} else {
		build = &db.Build{
			OutputPath: req.Msg.OutputPath,
			Format:     req.Msg.Format,
			SizeSpec:   req.Msg.SizeText,
			SizeBytes:  int64(req.Msg.SizeBytes),
			Mirror:     req.Msg.Mirror,
			Status:     db.StatusPending,
		}
		if err := m.repo.Create(build); err != nil {
			return nil, fsm.Abort(errors.Wrap(err, "failed to create build record"))
		}
		m.log.Info("build_record_created", "output_path", req.Msg.OutputPath, "build_id", build.ID)
	}

	resp.BuildID = build.ID
	return fsm.NewResponse(resp), nil
}

// handleFetch downloads the root filesystem archive unless it is already
// present and non-empty
func (m *Machine) handleFetch(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_fetch_archive", "archive_url", req.Msg.ArchiveURL, "archive_path", req.Msg.ArchivePath)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusFetching, ""); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
	}

	// Skip when a previous run already fetched the archive, so re-running
	// the pipeline after an interruption does not pay for the download
	// twice.
	if st, err := os.Stat(req.Msg.ArchivePath); err == nil && st.Size() > 0 {
		m.log.Info("archive_present_skip_fetch", "archive_path", req.Msg.ArchivePath, "size", st.Size())
		resp.ArchivePath = req.Msg.ArchivePath
		resp.ArchiveSize = st.Size()
		resp.ArchiveSkipped = true

		if build, _ := m.repo.GetByOutputPath(req.Msg.OutputPath); build != nil {
			build.ArchivePath = req.Msg.ArchivePath
			if err := m.repo.Update(build); err != nil {
				return nil, m.fail(ctx, resp, errors.Wrap(err, "failed to update build"))
			}
		}
		return fsm.NewResponse(resp), nil
	}

	if err := space.Check(filepath.Dir(req.Msg.ArchivePath), m.opts.DownloadHeadroom); err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	result, err := m.fetcher.Fetch(ctx, req.Msg.ArchiveURL, req.Msg.ArchivePath)
	if err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	m.log.Info("fetch_complete",
		"archive_path", result.Path,
		"size_mb", result.Size/1024/1024,
		"sha256", result.SHA256[:16]+"...",
	)

	resp.ArchivePath = result.Path
	resp.ArchiveSHA256 = result.SHA256
	resp.ArchiveSize = result.Size

	if build, _ := m.repo.GetByOutputPath(req.Msg.OutputPath); build != nil {
		build.ArchivePath = result.Path
		build.ArchiveSHA256 = result.SHA256
		if err := m.repo.Update(build); err != nil {
			return nil, m.fail(ctx, resp, errors.Wrap(err, "failed to update build"))
		}
	}

	return fsm.NewResponse(resp), nil
}

// handleAllocate creates the raw working image, gated by the overwrite
// prompt when the output already exists
func (m *Machine) handleAllocate(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_allocate_image", "output_path", req.Msg.OutputPath, "size", req.Msg.SizeText)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusAllocating, ""); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
	}

	// Overwrite gate before any byte is written.
	if _, err := os.Stat(req.Msg.OutputPath); err == nil && !req.Msg.Force {
		ok, cerr := m.confirm.Confirm(fmt.Sprintf("%s already exists, overwrite?", req.Msg.OutputPath))
		if cerr != nil {
			return nil, m.fail(ctx, resp, errors.Wrap(cerr, "overwrite confirmation"))
		}
		if !ok {
			m.log.Info("overwrite_declined", "output_path", req.Msg.OutputPath)
			resp.Status = db.StatusCancelled
			resp.ErrorMessage = ErrCancelled.Error()
			if err := m.repo.UpdateStatus(resp.BuildID, db.StatusCancelled, "overwrite declined"); err != nil {
				m.log.Error("status_update_failed", "build_id", resp.BuildID, "error", err)
			}
			return nil, fsm.Abort(ErrCancelled)
		}
	}

	// Sparse images cost almost nothing up front; only a preallocated
	// image needs the full size free now.
	if req.Msg.Preallocate {
		if err := space.Check(filepath.Dir(req.Msg.OutputPath), req.Msg.SizeBytes); err != nil {
			return nil, m.fail(ctx, resp, err)
		}
	}

	workPath := workingImagePath(req.Msg)
	m.log.Info("allocate_image", "image_path", workPath, "size_bytes", req.Msg.SizeBytes, "preallocate", req.Msg.Preallocate)

	if err := disk.Allocate(workPath, req.Msg.SizeBytes, req.Msg.Preallocate); err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	resp.ImagePath = workPath
	return fsm.NewResponse(resp), nil
}

// handlePartition writes the GPT onto the working image. On failure the
// image is left in place: partitioning the same container again is the
// recovery path, and a pre-allocated container is expensive to recreate.
func (m *Machine) handlePartition(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_partition_image", "output_path", req.Msg.OutputPath)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusPartitioning, ""); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
	}

	layout, err := disk.PlanLayout(req.Msg.BootBytes, req.Msg.SizeBytes)
	if err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	if err := disk.Partition(resp.ImagePath, layout); err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	parts, err := disk.ReadPartitions(resp.ImagePath)
	if err != nil {
		return nil, m.fail(ctx, resp, errors.Wrap(err, "verify partition table"))
	}
	resp.Partitions = parts

	m.log.Info("gpt_written", "image_path", resp.ImagePath, "partitions", len(parts))
	return fsm.NewResponse(resp), nil
}

// handleFormat creates filesystems on the partitions when populate was
// requested
func (m *Machine) handleFormat(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_format_partitions", "populate", req.Msg.Populate)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if !req.Msg.Populate {
		m.log.Info("format_skipped", "reason", "populate_not_requested")
		return fsm.NewResponse(resp), nil
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusFormatting, ""); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
	}

	if m.loop == nil {
		return nil, m.fail(ctx, resp, fmt.Errorf("populate requested but no loop device manager available"))
	}

	if err := m.loop.Format(ctx, resp.ImagePath); err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	return fsm.NewResponse(resp), nil
}

// handlePopulate extracts the fetched archive into the mounted partitions
// when populate was requested
func (m *Machine) handlePopulate(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_populate_rootfs", "populate", req.Msg.Populate)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if !req.Msg.Populate {
		m.log.Info("populate_skipped", "reason", "populate_not_requested")
		return fsm.NewResponse(resp), nil
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusPopulating, ""); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
	}

	if m.loop == nil {
		return nil, m.fail(ctx, resp, fmt.Errorf("populate requested but no loop device manager available"))
	}

	// Extraction fills previously sparse blocks, so the image's host
	// filesystem needs headroom even though the file size is fixed.
	if err := space.Check(filepath.Dir(resp.ImagePath), m.opts.PopulateHeadroom); err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	if err := m.loop.Populate(ctx, resp.ImagePath, resp.ArchivePath); err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	return fsm.NewResponse(resp), nil
}

// handleConvert re-encodes the staged raw image into the requested
// container format. Raw builds already wrote the output directly.
func (m *Machine) handleConvert(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_convert_image", "format", req.Msg.Format)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if req.Msg.Format == qemuimg.FormatRaw {
		m.log.Info("convert_skipped", "reason", "raw_output")
		return fsm.NewResponse(resp), nil
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusConverting, ""); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
	}

	// The converted container can need as much space as the raw image
	// actually occupies on disk.
	allocated, err := space.Allocated(resp.ImagePath)
	if err != nil {
		return nil, m.fail(ctx, resp, err)
	}
	if err := space.Check(filepath.Dir(req.Msg.OutputPath), allocated); err != nil {
		return nil, m.fail(ctx, resp, err)
	}

	if err := qemuimg.Convert(ctx, resp.ImagePath, req.Msg.OutputPath, req.Msg.Format); err != nil {
		// The staging image survives so a re-run can convert again
		// without rebuilding it.
		return nil, m.fail(ctx, resp, err)
	}

	if err := os.Remove(resp.ImagePath); err != nil {
		m.log.Error("staging_cleanup_failed", "image_path", resp.ImagePath, "error", err)
	}
	resp.ImagePath = req.Msg.OutputPath

	return fsm.NewResponse(resp), nil
}

// handleComplete marks the build ready
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	m.log.Info("fsm_state_complete", "output_path", req.Msg.OutputPath)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusReady, ""); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
	}
	resp.Status = db.StatusReady

	m.log.Info("build_complete",
		"output_path", req.Msg.OutputPath,
		"status", db.StatusReady,
		"partitions", len(resp.Partitions),
		"archive_skipped", resp.ArchiveSkipped,
	)

	return fsm.NewResponse(resp), nil
}
