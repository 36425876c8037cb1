package ext2

import (
	"encoding/binary"
	"fmt"
)

type fileType uint16

const (
	fileTypeFIFO            fileType = 0x1000
	fileTypeCharacterDevice fileType = 0x2000
	fileTypeDirectory       fileType = 0x4000
	fileTypeBlockDevice     fileType = 0x6000
	fileTypeRegularFile     fileType = 0x8000
	fileTypeSymbolicLink    fileType = 0xA000
	fileTypeSocket          fileType = 0xC000

	fileTypeMask uint16 = 0xF000
)

// Inode is a read-only view of an on-disk ext2 inode record: file type and
// permission bits, size, and the direct/indirect/doubly-indirect/
// triply-indirect data block pointers.
type Inode struct {
	Number uint32

	Mode  uint16 // full type_perm field, POSIX mode bits plus file type
	UID   uint16
	GID   uint16
	Links uint16
	Flags uint32

	SizeLow  uint32
	SizeHigh uint32

	DirectPointer  [directPointerCount]uint32
	IndirectBlock  uint32
	DIndirectBlock uint32
	TIndirectBlock uint32
}

// Size is the inode's declared byte size, (size_high<<32)|size_low. Only
// meaningful for regular files; size_high aliases i_dir_acl for directories.
func (i *Inode) Size() uint64 {
	return (uint64(i.SizeHigh) << 32) | uint64(i.SizeLow)
}

func (i *Inode) fileType() fileType {
	return fileType(i.Mode & fileTypeMask)
}

// IsDir reports whether the inode's type bits mark it a directory.
func (i *Inode) IsDir() bool {
	return i.fileType() == fileTypeDirectory
}

// IsRegular reports whether the inode's type bits mark it a regular file.
func (i *Inode) IsRegular() bool {
	return i.fileType() == fileTypeRegularFile
}

// IsSymlink reports whether the inode's type bits mark it a symbolic link.
func (i *Inode) IsSymlink() bool {
	return i.fileType() == fileTypeSymbolicLink
}

// parseInode decodes a fixed-size inode record. b must be at least
// directMinInodeSize (128) bytes; trailing ext4-style extra fields, if any,
// are ignored.
func parseInode(b []byte, number uint32) (*Inode, error) {
	if len(b) < int(directMinInodeSize) {
		return nil, fmt.Errorf("inode record too short: %d bytes", len(b))
	}

	in := &Inode{
		Number:   number,
		Mode:     binary.LittleEndian.Uint16(b[0x00:0x02]),
		UID:      binary.LittleEndian.Uint16(b[0x02:0x04]),
		SizeLow:  binary.LittleEndian.Uint32(b[0x04:0x08]),
		GID:      binary.LittleEndian.Uint16(b[0x18:0x1a]),
		Links:    binary.LittleEndian.Uint16(b[0x1a:0x1c]),
		Flags:    binary.LittleEndian.Uint32(b[0x20:0x24]),
		SizeHigh: binary.LittleEndian.Uint32(b[0x6c:0x70]),
	}

	for i := 0; i < directPointerCount; i++ {
		off := 0x28 + i*4
		in.DirectPointer[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	in.IndirectBlock = binary.LittleEndian.Uint32(b[0x58:0x5c])
	in.DIndirectBlock = binary.LittleEndian.Uint32(b[0x5c:0x60])
	in.TIndirectBlock = binary.LittleEndian.Uint32(b[0x60:0x64])

	if !in.IsRegular() {
		in.SizeHigh = 0
	}

	return in, nil
}
