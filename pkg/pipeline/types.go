package pipeline

import (
	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/disk"
)

// Request is the FSM input describing one build
type Request struct {
	OutputPath  string
	SizeText    string
	SizeBytes   uint64
	BootBytes   uint64
	Format      string
	Mirror      string
	ArchiveURL  string
	ArchivePath string
	Force       bool
	Populate    bool
	Preallocate bool
}

// Response is the FSM output (accumulated across transitions)
type Response struct {
	// From preflight
	BuildID int64

	// From fetch_archive
	ArchivePath    string
	ArchiveSHA256  string
	ArchiveSize    int64
	ArchiveSkipped bool

	// From allocate_image: the raw working image. For raw builds this is
	// the output path itself, otherwise a staging file beside it.
	ImagePath string

	// From partition_image
	Partitions []disk.PartitionInfo

	// From complete/failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StatePreflight = "preflight"
	StateFetch     = "fetch_archive"
	StateAllocate  = "allocate_image"
	StatePartition = "partition_image"
	StateFormat    = "format_partitions"
	StatePopulate  = "populate_rootfs"
	StateConvert   = "convert_image"
	StateComplete  = "complete"
	StateFailed    = "failed"
)
