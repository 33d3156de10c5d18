package disk

import (
	"fmt"

	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

const (
	// DefaultSectorSize is the logical sector size assumed for raw images.
	DefaultSectorSize = 512

	// firstUsableSector keeps partition 1 aligned to 1 MiB, leaving room
	// for the protective MBR, the GPT header, and the partition entries.
	firstUsableSector = 2048

	// backupSectors is what the secondary GPT occupies at the end of the
	// disk: one header sector plus 32 sectors of partition entries.
	backupSectors = 33
)

// Partition names matching what gdisk assigns for types ef00 and 8300.
const (
	BootPartitionName = "EFI system partition"
	DataPartitionName = "Linux filesystem"
)

// Layout is the fixed two-partition plan: an EFI system partition followed
// by a data partition consuming the remaining capacity. Sector values are
// in DefaultSectorSize units.
type Layout struct {
	DiskSize  uint64
	BootStart uint64
	BootEnd   uint64
	DataStart uint64
	DataEnd   uint64
}

// BootBytes returns the boot partition size in bytes.
func (l *Layout) BootBytes() uint64 {
	return (l.BootEnd - l.BootStart + 1) * DefaultSectorSize
}

// DataBytes returns the data partition size in bytes.
func (l *Layout) DataBytes() uint64 {
	return (l.DataEnd - l.DataStart + 1) * DefaultSectorSize
}

// minDiskBytes is the smallest image that can hold the layout: everything
// through the data partition's first sector plus the GPT backup.
func (l *Layout) minDiskBytes() uint64 {
	return (l.DataStart + 1 + backupSectors) * DefaultSectorSize
}

// PlanLayout computes the partition plan for a disk of diskBytes holding a
// boot partition of bootBytes. The boot partition starts at sector 2048
// and the data partition runs through the last usable LBA before the GPT
// backup. Planning is pure arithmetic, so infeasible combinations are
// rejected before any file exists.
func PlanLayout(bootBytes, diskBytes uint64) (*Layout, error) {
	if bootBytes == 0 || bootBytes%DefaultSectorSize != 0 {
		return nil, fmt.Errorf("boot partition size %d is not a multiple of %d bytes", bootBytes, DefaultSectorSize)
	}

	bootSectors := bootBytes / DefaultSectorSize
	l := &Layout{
		DiskSize:  diskBytes,
		BootStart: firstUsableSector,
		BootEnd:   firstUsableSector + bootSectors - 1,
		DataStart: firstUsableSector + bootSectors,
	}

	totalSectors := diskBytes / DefaultSectorSize
	if diskBytes < l.minDiskBytes() {
		return nil, fmt.Errorf("image size %s cannot hold the partition layout (need at least %s)",
			humanize.IBytes(diskBytes), humanize.IBytes(l.minDiskBytes()))
	}
	l.DataEnd = totalSectors - backupSectors - 1

	return l, nil
}

// Partition writes a protective-MBR GPT realizing the layout onto the raw
// image at path. The table is built in-process; no external partitioning
// tool is involved. On failure the image file is left in place: a failed
// table write is recoverable by partitioning the same container again.
func Partition(path string, l *Layout) error {
	d, err := diskfs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open image %s", path)
	}
	defer d.Close()

	if uint64(d.Size) < l.minDiskBytes() {
		return fmt.Errorf("image %s is %s, too small for the partition layout (need at least %s)",
			path, humanize.IBytes(uint64(d.Size)), humanize.IBytes(l.minDiskBytes()))
	}

	table := &gpt.Table{
		ProtectiveMBR:      true,
		GUID:               uuid.New().String(),
		LogicalSectorSize:  int(d.LogicalBlocksize),
		PhysicalSectorSize: int(d.PhysicalBlocksize),
		Partitions: []*gpt.Partition{
			{
				Start: l.BootStart,
				End:   l.BootEnd,
				Size:  l.BootBytes(),
				Type:  gpt.EFISystemPartition,
				Name:  BootPartitionName,
				GUID:  uuid.New().String(),
			},
			{
				Start: l.DataStart,
				End:   l.DataEnd,
				Size:  l.DataBytes(),
				Type:  gpt.LinuxFilesystem,
				Name:  DataPartitionName,
				GUID:  uuid.New().String(),
			},
		},
	}

	if err := d.Partition(table); err != nil {
		return errors.Wrapf(err, "write partition table to %s", path)
	}
	return nil
}

// PartitionInfo describes one GPT entry read back from an image.
type PartitionInfo struct {
	Index int
	Name  string
	Type  string
	GUID  string
	Start uint64 // sector
	Size  uint64 // bytes
}

// ReadPartitions returns the GPT entries of a raw image, skipping unused
// slots. It fails when the image carries no GPT.
func ReadPartitions(path string) ([]PartitionInfo, error) {
	d, err := diskfs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer d.Close()

	tbl, err := d.GetPartitionTable()
	if err != nil {
		return nil, errors.Wrapf(err, "read partition table from %s", path)
	}

	gptTable, ok := tbl.(*gpt.Table)
	if !ok {
		return nil, fmt.Errorf("image %s does not carry a GPT (found %s)", path, tbl.Type())
	}

	sectorSize := uint64(gptTable.LogicalSectorSize)
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}

	var infos []PartitionInfo
	for i, p := range gptTable.Partitions {
		if p == nil || p.Type == gpt.Unused || (p.Start == 0 && p.End == 0) {
			continue
		}
		infos = append(infos, PartitionInfo{
			Index: i + 1,
			Name:  p.Name,
			Type:  string(p.Type),
			GUID:  p.GUID,
			Start: p.Start,
			Size:  (p.End - p.Start + 1) * sectorSize,
		})
	}

	return infos, nil
}
