package ext2

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/ext2img/ext2shell/backend"
	"github.com/ext2img/ext2shell/backend/file"
)

// testImageLayout is the fixed plan for a tiny synthetic single-group ext2
// image used across this package's tests. It mirrors, at far smaller scale,
// the on-disk layout built by other_examples' R2DXT ext2 writer: superblock
// at block 1, group descriptor table at block 2, block bitmap at block 3,
// inode bitmap at block 4, inode table at blocks 5-8, data blocks from 9.
const (
	testBlockSize       = 1024
	testInodesPerGroup  = 32
	testInodeSize       = 128
	testBlocksCount     = 20
	testGDTBlock        = 2
	testBlockBitmapBlk  = 3
	testInodeBitmapBlk  = 4
	testInodeTableBlk   = 5
	testInodeTableBlks  = 4
	testRootDataBlk     = 9
	testBDirDataBlk     = 10
	testADataBlk        = 11
	testCDataBlk        = 12
	testDDataBlk        = 13

	testRootInode uint32 = 2
	testAInode    uint32 = 3
	testBInode    uint32 = 4
	testCInode    uint32 = 5
	testDInode    uint32 = 6
)

type testDirentSpec struct {
	inode uint32
	name  string
	ft    uint8
}

// buildDirBlock packs entries into a single block-sized buffer, extending
// the last entry's recorded length to the block boundary.
func buildDirBlock(entries []testDirentSpec) []byte {
	buf := make([]byte, testBlockSize)
	cursor := 0
	for i, e := range entries {
		length := int(dirEntryMinLen(len(e.name)))
		if i == len(entries)-1 {
			length = testBlockSize - cursor
		}
		de := DirectoryEntry{
			Inode:     e.inode,
			EntrySize: uint16(length),
			NameLen:   uint8(len(e.name)),
			FileType:  e.ft,
			Name:      e.name,
		}
		putDirectoryEntry(buf, cursor, de)
		cursor += length
	}
	return buf
}

func putInode(buf []byte, tableBlockBase int, number uint32, mode uint16, size uint32, direct []uint32) {
	off := tableBlockBase + int(number-1)*testInodeSize
	binary.LittleEndian.PutUint16(buf[off:off+2], mode)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], size)
	binary.LittleEndian.PutUint16(buf[off+0x1a:off+0x1c], 1) // links count
	for i, d := range direct {
		if i >= directPointerCount {
			break
		}
		p := off + 0x28 + i*4
		binary.LittleEndian.PutUint32(buf[p:p+4], d)
	}
}

// buildTestImageBytes constructs a small synthetic tree (root containing
// a, b/ (containing file c = "hello\n"), d) as a raw byte image, without
// opening it.
func buildTestImageBytes() []byte {
	img := make([]byte, testBlocksCount*testBlockSize)

	// superblock
	sb := img[1024 : 1024+1024]
	binary.LittleEndian.PutUint32(sb[0x00:0x04], testInodesPerGroup) // inodes_count
	binary.LittleEndian.PutUint32(sb[0x04:0x08], testBlocksCount)    // blocks_count
	binary.LittleEndian.PutUint32(sb[0x20:0x24], testBlocksCount)    // blocks_per_group (single group)
	binary.LittleEndian.PutUint32(sb[0x28:0x2c], testInodesPerGroup) // inodes_per_group
	binary.LittleEndian.PutUint16(sb[0x38:0x3a], ext2Magic)
	binary.LittleEndian.PutUint16(sb[0x58:0x5a], testInodeSize)
	binary.LittleEndian.PutUint32(sb[0x54:0x58], 11)

	// group descriptor table (one descriptor, 32 bytes, at block 2)
	gdt := img[testGDTBlock*testBlockSize : testGDTBlock*testBlockSize+groupDescriptorSize]
	binary.LittleEndian.PutUint32(gdt[0x00:0x04], testBlockBitmapBlk)
	binary.LittleEndian.PutUint32(gdt[0x04:0x08], testInodeBitmapBlk)
	binary.LittleEndian.PutUint32(gdt[0x08:0x0c], testInodeTableBlk)

	// inode bitmap: mark inodes 1..6 used, leave 7+ free
	inoBm := img[testInodeBitmapBlk*testBlockSize : testInodeBitmapBlk*testBlockSize+testBlockSize]
	for i := 0; i < 6; i++ {
		inoBm[i/8] |= 1 << uint(i%8)
	}

	// inode table
	tableBase := testInodeTableBlk * testBlockSize
	const (
		modeDir = 0x4000 | 0o755
		modeReg = 0x8000 | 0o644
	)
	putInode(img, tableBase, testRootInode, modeDir, testBlockSize, []uint32{testRootDataBlk})
	putInode(img, tableBase, testAInode, modeReg, 2, []uint32{testADataBlk})
	putInode(img, tableBase, testBInode, modeDir, testBlockSize, []uint32{testBDirDataBlk})
	putInode(img, tableBase, testCInode, modeReg, 6, []uint32{testCDataBlk})
	putInode(img, tableBase, testDInode, modeReg, 2, []uint32{testDDataBlk})

	// root directory: ., .., a, b, d
	rootDir := buildDirBlock([]testDirentSpec{
		{testRootInode, ".", dirTypeDir},
		{testRootInode, "..", dirTypeDir},
		{testAInode, "a", dirTypeRegular},
		{testBInode, "b", dirTypeDir},
		{testDInode, "d", dirTypeRegular},
	})
	copy(img[testRootDataBlk*testBlockSize:], rootDir)

	// b directory: ., .., c
	bDir := buildDirBlock([]testDirentSpec{
		{testBInode, ".", dirTypeDir},
		{testRootInode, "..", dirTypeDir},
		{testCInode, "c", dirTypeRegular},
	})
	copy(img[testBDirDataBlk*testBlockSize:], bDir)

	// file contents
	copy(img[testADataBlk*testBlockSize:], "A\n")
	copy(img[testCDataBlk*testBlockSize:], "hello\n")
	copy(img[testDDataBlk*testBlockSize:], "D\n")

	return img
}

// buildTestImage writes buildTestImageBytes to a temp file and returns an
// opened FileSystem backed by it.
func buildTestImage(t *testing.T) *FileSystem {
	t.Helper()

	store := writeTempImage(t, buildTestImageBytes())

	fs, root, err := Open(store)
	if err != nil {
		t.Fatalf("could not open ext2 filesystem: %v", err)
	}
	if root != RootInode {
		t.Fatalf("expected root inode %d, got %d", RootInode, root)
	}
	return fs
}

func writeTempImage(t *testing.T, img []byte) backend.Storage {
	t.Helper()

	tmp, err := os.CreateTemp(t.TempDir(), "ext2-test-*.img")
	if err != nil {
		t.Fatalf("could not create temp image: %v", err)
	}
	if _, err := tmp.Write(img); err != nil {
		t.Fatalf("could not write temp image: %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("could not close temp image: %v", err)
	}

	store, err := file.OpenFromPath(tmp.Name(), false)
	if err != nil {
		t.Fatalf("could not open temp image: %v", err)
	}
	t.Cleanup(func() {
		if s, ok := store.(interface{ Close() error }); ok {
			_ = s.Close()
		}
	})
	return store
}
