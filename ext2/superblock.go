package ext2

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	superblockOffset int64 = 1024
	superblockSize   int64 = 1024
)

// Superblock holds the parsed fields of the 1024-byte ext2 superblock
// record at device offset 1024. It never mutates after load.
type Superblock struct {
	InodesCount     uint32
	BlocksCount     uint32
	RBlocksCount    uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	BlocksPerGroup  uint32
	FragsPerGroup   uint32
	InodesPerGroup  uint32
	Magic           uint16
	InodeSize       uint16
	FirstInode      uint32
	UUID            uuid.UUID

	// BlockSize is derived as 1024 << LogBlockSize.
	BlockSize uint32
	// GroupCount is ceil(BlocksCount / BlocksPerGroup).
	GroupCount uint32
}

// parseSuperblock interprets bytes [1024, 2048) of the image as the
// superblock record and validates the magic number.
func parseSuperblock(b []byte) (*Superblock, error) {
	if len(b) < int(superblockSize) {
		return nil, fmt.Errorf("%w: superblock record too short (%d bytes)", ErrNotExt2, len(b))
	}

	magic := binary.LittleEndian.Uint16(b[0x38:0x3a])
	if magic != ext2Magic {
		return nil, ErrNotExt2
	}

	sb := &Superblock{
		InodesCount:     binary.LittleEndian.Uint32(b[0x00:0x04]),
		BlocksCount:     binary.LittleEndian.Uint32(b[0x04:0x08]),
		RBlocksCount:    binary.LittleEndian.Uint32(b[0x08:0x0c]),
		FreeBlocksCount: binary.LittleEndian.Uint32(b[0x0c:0x10]),
		FreeInodesCount: binary.LittleEndian.Uint32(b[0x10:0x14]),
		FirstDataBlock:  binary.LittleEndian.Uint32(b[0x14:0x18]),
		LogBlockSize:    binary.LittleEndian.Uint32(b[0x18:0x1c]),
		BlocksPerGroup:  binary.LittleEndian.Uint32(b[0x20:0x24]),
		FragsPerGroup:   binary.LittleEndian.Uint32(b[0x24:0x28]),
		InodesPerGroup:  binary.LittleEndian.Uint32(b[0x28:0x2c]),
		Magic:           magic,
		InodeSize:       binary.LittleEndian.Uint16(b[0x58:0x5a]),
		FirstInode:      binary.LittleEndian.Uint32(b[0x54:0x58]),
	}

	if sb.InodeSize == 0 {
		sb.InodeSize = directMinInodeSize
	}
	if sb.BlocksPerGroup == 0 {
		return nil, fmt.Errorf("%w: blocks_per_group is zero", ErrNotExt2)
	}

	sb.BlockSize = 1024 << sb.LogBlockSize
	sb.GroupCount = ceilDivU32(sb.BlocksCount, sb.BlocksPerGroup)

	var rawUUID [16]byte
	copy(rawUUID[:], b[0x68:0x78])
	id, err := uuid.FromBytes(rawUUID[:])
	if err == nil {
		sb.UUID = id
	}

	return sb, nil
}

func ceilDivU32(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Summary is a human-readable one-line description used by the `statfs`
// command's filesystem-level dump.
func (sb *Superblock) Summary() string {
	return fmt.Sprintf("ext2, block size %d, %d inodes, %d blocks, %d groups, uuid %s",
		sb.BlockSize, sb.InodesCount, sb.BlocksCount, sb.GroupCount, sb.UUID)
}
