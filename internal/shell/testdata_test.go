package shell

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ext2img/ext2shell/backend/file"
	"github.com/ext2img/ext2shell/ext2"
)

// newTestFS builds the same small tree the core package's own tests use
// (root containing a, b/ (containing c = "hello\n"), d), but via the
// exported ext2.Open boundary only, for exercising the REPL end to end.
func newTestFS(t *testing.T) *ext2.FileSystem {
	t.Helper()

	const (
		blockSize      = 1024
		inodesPerGroup = 32
		inodeSize      = 128
		blocksCount    = 20
		gdtBlock       = 2
		inodeBitmapBlk = 4
		inodeTableBlk  = 5
		rootDataBlk    = 9
		bDirDataBlk    = 10
		aDataBlk       = 11
		cDataBlk       = 12
		dDataBlk       = 13

		rootInode uint32 = 2
		aInode    uint32 = 3
		bInode    uint32 = 4
		cInode    uint32 = 5
		dInode    uint32 = 6
	)

	img := make([]byte, blocksCount*blockSize)

	sb := img[1024 : 1024+1024]
	binary.LittleEndian.PutUint32(sb[0x00:0x04], inodesPerGroup)
	binary.LittleEndian.PutUint32(sb[0x04:0x08], blocksCount)
	binary.LittleEndian.PutUint32(sb[0x20:0x24], blocksCount)
	binary.LittleEndian.PutUint32(sb[0x28:0x2c], inodesPerGroup)
	binary.LittleEndian.PutUint16(sb[0x38:0x3a], 0xEF53)
	binary.LittleEndian.PutUint16(sb[0x58:0x5a], inodeSize)
	binary.LittleEndian.PutUint32(sb[0x54:0x58], 11)

	gdt := img[gdtBlock*blockSize : gdtBlock*blockSize+32]
	binary.LittleEndian.PutUint32(gdt[0x00:0x04], 3)
	binary.LittleEndian.PutUint32(gdt[0x04:0x08], inodeBitmapBlk)
	binary.LittleEndian.PutUint32(gdt[0x08:0x0c], inodeTableBlk)

	inoBm := img[inodeBitmapBlk*blockSize : inodeBitmapBlk*blockSize+blockSize]
	for i := 0; i < 6; i++ {
		inoBm[i/8] |= 1 << uint(i%8)
	}

	tableBase := inodeTableBlk * blockSize
	putInode := func(number uint32, mode uint16, size uint32, direct uint32) {
		off := tableBase + int(number-1)*inodeSize
		binary.LittleEndian.PutUint16(img[off:off+2], mode)
		binary.LittleEndian.PutUint32(img[off+4:off+8], size)
		binary.LittleEndian.PutUint16(img[off+0x1a:off+0x1c], 1)
		binary.LittleEndian.PutUint32(img[off+0x28:off+0x2c], direct)
	}
	const (
		modeDir = 0x4000 | 0o755
		modeReg = 0x8000 | 0o644
	)
	putInode(rootInode, modeDir, blockSize, rootDataBlk)
	putInode(aInode, modeReg, 2, aDataBlk)
	putInode(bInode, modeDir, blockSize, bDirDataBlk)
	putInode(cInode, modeReg, 6, cDataBlk)
	putInode(dInode, modeReg, 2, dDataBlk)

	putDirent := func(buf []byte, off int, inode uint32, entrySize uint16, name string, ft uint8) {
		binary.LittleEndian.PutUint32(buf[off:off+4], inode)
		binary.LittleEndian.PutUint16(buf[off+4:off+6], entrySize)
		buf[off+6] = uint8(len(name))
		buf[off+7] = ft
		copy(buf[off+8:], name)
	}

	rootDir := make([]byte, blockSize)
	putDirent(rootDir, 0, rootInode, 12, ".", ext2.DirTypeDir)
	putDirent(rootDir, 12, rootInode, 12, "..", ext2.DirTypeDir)
	putDirent(rootDir, 24, aInode, 12, "a", ext2.DirTypeRegular)
	putDirent(rootDir, 36, bInode, 12, "b", ext2.DirTypeDir)
	putDirent(rootDir, 48, dInode, blockSize-48, "d", ext2.DirTypeRegular)
	copy(img[rootDataBlk*blockSize:], rootDir)

	bDir := make([]byte, blockSize)
	putDirent(bDir, 0, bInode, 12, ".", ext2.DirTypeDir)
	putDirent(bDir, 12, rootInode, 12, "..", ext2.DirTypeDir)
	putDirent(bDir, 24, cInode, blockSize-24, "c", ext2.DirTypeRegular)
	copy(img[bDirDataBlk*blockSize:], bDir)

	copy(img[aDataBlk*blockSize:], "A\n")
	copy(img[cDataBlk*blockSize:], "hello\n")
	copy(img[dDataBlk*blockSize:], "D\n")

	tmp, err := os.CreateTemp(t.TempDir(), "ext2shell-test-*.img")
	require.NoError(t, err)
	_, err = tmp.Write(img)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	store, err := file.OpenFromPath(tmp.Name(), false)
	require.NoError(t, err)

	fs, root, err := ext2.Open(store)
	require.NoError(t, err)
	require.EqualValues(t, ext2.RootInode, root)
	return fs
}
