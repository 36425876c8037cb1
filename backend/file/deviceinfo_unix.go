//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package file

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ioctl request numbers for the Linux block-device sector-size queries;
// mirrors what the kernel documents under Documentation/ioctl/.
const (
	blkSSZGet = 0x1268
	blkBSZGet = 0x80081270
)

// deviceSize reports the size in bytes of the block device backing f,
// read from sysfs since stat(2) reports a block device's file size as 0.
func deviceSize(f *os.File) (int64, error) {
	sizePath := fmt.Sprintf("/sys/class/block/%s/size", path.Base(f.Name()))
	raw, err := os.ReadFile(sizePath)
	if err != nil {
		return 0, fmt.Errorf("could not read device size from %s: %w", sizePath, err)
	}
	sectors, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid device size %q in %s: %w", raw, sizePath, err)
	}
	return sectors * 512, nil
}

// sectorSizes reports the logical and physical sector size of the block
// device backing f via the BLKSSZGET/BLKBSZGET ioctls.
func sectorSizes(f *os.File) (logical, physical int64, err error) {
	fd := int(f.Fd())
	l, err := unix.IoctlGetInt(fd, blkSSZGet)
	if err != nil {
		return 0, 0, fmt.Errorf("could not get logical sector size: %w", err)
	}
	p, err := unix.IoctlGetInt(fd, blkBSZGet)
	if err != nil {
		return 0, 0, fmt.Errorf("could not get physical sector size: %w", err)
	}
	return int64(l), int64(p), nil
}
