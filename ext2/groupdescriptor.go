package ext2

import "encoding/binary"

const groupDescriptorSize = 32

// groupDescriptor holds the essentials of one 32-byte block group
// descriptor record: the block usage bitmap block, inode usage bitmap
// block, inode table block, and free counters.
type groupDescriptor struct {
	BlockBitmapBlock uint32
	InodeBitmapBlock uint32
	InodeTableBlock  uint32
	FreeBlocksCount  uint16
	FreeInodesCount  uint16
	UsedDirsCount    uint16
}

func parseGroupDescriptor(b []byte) groupDescriptor {
	return groupDescriptor{
		BlockBitmapBlock: binary.LittleEndian.Uint32(b[0x00:0x04]),
		InodeBitmapBlock: binary.LittleEndian.Uint32(b[0x04:0x08]),
		InodeTableBlock:  binary.LittleEndian.Uint32(b[0x08:0x0c]),
		FreeBlocksCount:  binary.LittleEndian.Uint16(b[0x0c:0x0e]),
		FreeInodesCount:  binary.LittleEndian.Uint16(b[0x0e:0x10]),
		UsedDirsCount:    binary.LittleEndian.Uint16(b[0x10:0x12]),
	}
}

// parseGroupDescriptorTable interprets the block immediately following the
// superblock as a tightly packed array of groupCount descriptors.
func parseGroupDescriptorTable(img *Image, sb *Superblock) ([]groupDescriptor, error) {
	// the superblock occupies the first 2KiB of the device; the group
	// descriptor table begins at the block that follows it.
	gdtBlockNumber := uint64(1)
	if sb.BlockSize == 1024 {
		gdtBlockNumber = 2
	}

	descriptors := make([]groupDescriptor, 0, sb.GroupCount)
	bytesNeeded := int(sb.GroupCount) * groupDescriptorSize
	blocksNeeded := ceilDivInt(bytesNeeded, int(sb.BlockSize))

	gdtOffset, err := img.index(gdtBlockNumber)
	if err != nil {
		return nil, err
	}
	raw, err := img.ReadAt(gdtOffset, blocksNeeded*int(sb.BlockSize))
	if err != nil {
		return nil, err
	}

	for i := uint32(0); i < sb.GroupCount; i++ {
		off := int(i) * groupDescriptorSize
		descriptors = append(descriptors, parseGroupDescriptor(raw[off:off+groupDescriptorSize]))
	}
	return descriptors, nil
}

func ceilDivInt(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
