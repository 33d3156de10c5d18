// Package loopback maps a partitioned raw image through loop devices so
// its partitions can be formatted and loaded with the root filesystem.
package loopback

import "context"

// Manager formats and populates the partitions of a raw disk image.
type Manager interface {
	// Format creates the filesystems: FAT32 on the boot partition,
	// ext4 on the data partition.
	Format(ctx context.Context, imagePath string) error

	// Populate extracts the root filesystem archive into the mounted
	// partitions, boot files included.
	Populate(ctx context.Context, imagePath, archivePath string) error
}
