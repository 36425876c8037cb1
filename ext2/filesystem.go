package ext2

import (
	"fmt"
	"strings"

	"github.com/ext2img/ext2shell/backend"
	"github.com/ext2img/ext2shell/util/bitmap"
	"github.com/sirupsen/logrus"
)

// FileSystem is an opened ext2 image: the superblock, the group descriptor
// table, and the underlying image view. It never reassigns any of these
// after Open returns.
type FileSystem struct {
	Superblock       *Superblock
	groupDescriptors []groupDescriptor
	image            *Image
}

// Open reads the superblock and group descriptor table out of b and
// returns a FileSystem plus the root directory's inode number (always 2).
// b is expected to begin at disk block 0 of the ext2 filesystem itself;
// for an ext2 filesystem embedded inside a larger partitioned image, use
// OpenAt instead.
func Open(b backend.Storage) (*FileSystem, uint32, error) {
	header, err := b.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("could not stat image: %w", err)
	}
	return open(b, header.Size())
}

// OpenAt opens an ext2 filesystem that starts byteOffset bytes into the
// backing storage and spans byteSize bytes, via a backend.SubStorage. This
// is the path a `mount`-style command over a partitioned disk image would
// use once partition-table parsing exists.
func OpenAt(b backend.Storage, byteOffset, byteSize int64) (*FileSystem, uint32, error) {
	sub := backend.Sub(b, byteOffset, byteSize)
	return open(sub, byteSize)
}

func open(b backend.Storage, size int64) (*FileSystem, uint32, error) {
	if size < superblockOffset+superblockSize {
		return nil, 0, fmt.Errorf("%w: image too small to hold a superblock", ErrNotExt2)
	}

	sbBytes := make([]byte, superblockSize)
	if _, err := b.ReadAt(sbBytes, superblockOffset); err != nil {
		return nil, 0, fmt.Errorf("could not read superblock: %w", err)
	}
	sb, err := parseSuperblock(sbBytes)
	if err != nil {
		return nil, 0, err
	}

	// the caller-supplied backend begins at the filesystem's own block 0
	// regardless of where it sits inside a larger device, since OpenAt's
	// backend.SubStorage already translates byte offsets; block_offset is
	// therefore always 0 here.
	img, err := newImageSized(b, sb.BlockSize, 0, size)
	if err != nil {
		return nil, 0, err
	}

	gds, err := parseGroupDescriptorTable(img, sb)
	if err != nil {
		return nil, 0, fmt.Errorf("could not read group descriptor table: %w", err)
	}

	fs := &FileSystem{
		Superblock:       sb,
		groupDescriptors: gds,
		image:            img,
	}
	return fs, RootInode, nil
}

// Flush writes the in-memory image back to the backend it was opened from.
func (fs *FileSystem) Flush() error {
	return fs.image.Flush()
}

// GetInode resolves a 1-based inode number to its on-disk record.
func (fs *FileSystem) GetInode(n uint32) (*Inode, error) {
	return fs.readInode(n)
}

func (fs *FileSystem) readInode(n uint32) (*Inode, error) {
	if n == 0 || n > fs.Superblock.InodesCount {
		return nil, fmt.Errorf("%w: inode %d", ErrNoSuchInode, n)
	}

	group := (n - 1) / fs.Superblock.InodesPerGroup
	index := (n - 1) % fs.Superblock.InodesPerGroup
	if int(group) >= len(fs.groupDescriptors) {
		return nil, fmt.Errorf("%w: inode %d maps to group %d beyond %d known groups", ErrCorruptImage, n, group, len(fs.groupDescriptors))
	}
	tableBlock := uint64(fs.groupDescriptors[group].InodeTableBlock)

	tableByteOffset, err := fs.image.index(tableBlock)
	if err != nil {
		return nil, fmt.Errorf("could not locate inode table for inode %d: %w", n, err)
	}
	inodeOffset := tableByteOffset + int64(index)*int64(fs.Superblock.InodeSize)

	raw, err := fs.image.ReadAt(inodeOffset, int(fs.Superblock.InodeSize))
	if err != nil {
		return nil, fmt.Errorf("could not read inode %d record: %w", n, err)
	}

	return parseInode(raw, n)
}

// dataBlockNumbers returns, in logical order, the on-disk block numbers
// backing up to limit bytes of an inode's data, honoring direct pointers
// and, if includeIndirect is set, a single level of indirection.
func (fs *FileSystem) dataBlockNumbers(in *Inode, limit uint64, includeIndirect bool) ([]uint64, error) {
	var blocks []uint64
	blockSize := uint64(fs.Superblock.BlockSize)
	remaining := limit

	for _, ptr := range in.DirectPointer {
		if remaining == 0 {
			break
		}
		if ptr == 0 {
			break
		}
		blocks = append(blocks, uint64(ptr))
		if remaining > blockSize {
			remaining -= blockSize
		} else {
			remaining = 0
		}
	}

	if remaining > 0 && includeIndirect && in.IndirectBlock != 0 {
		indirect, err := fs.image.Block(uint64(in.IndirectBlock))
		if err != nil {
			return nil, fmt.Errorf("could not read indirect block for inode %d: %w", in.Number, err)
		}
		ptrsPerBlock := len(indirect) / 4
		for i := 0; i < ptrsPerBlock && remaining > 0; i++ {
			ptr := leU32(indirect[i*4 : i*4+4])
			if ptr == 0 {
				break
			}
			blocks = append(blocks, uint64(ptr))
			if remaining > blockSize {
				remaining -= blockSize
			} else {
				remaining = 0
			}
		}
	}

	return blocks, nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// readDirectoryPayload gathers Phase A of directory reading: the
// concatenation of a directory inode's data blocks, up to its declared
// size. Trailing NUL padding is kept; the payload is not trimmed.
func (fs *FileSystem) readDirectoryPayload(in *Inode) ([]byte, error) {
	if !in.IsDir() {
		return nil, ErrNotDirectory
	}

	blocks, err := fs.dataBlockNumbers(in, in.Size(), true)
	if err != nil {
		return nil, err
	}

	var payload []byte
	remaining := in.Size()
	blockSize := uint64(fs.Superblock.BlockSize)
	for _, bn := range blocks {
		if remaining == 0 {
			break
		}
		data, err := fs.image.Block(bn)
		if err != nil {
			return nil, fmt.Errorf("could not read directory data block %d for inode %d: %w", bn, in.Number, err)
		}
		take := blockSize
		if remaining < take {
			take = remaining
		}
		payload = append(payload, data[:take]...)
		remaining -= take
	}

	return payload, nil
}

// DirEntry is a single enumerated (child-inode, name) pair, as returned by
// ListDir.
type DirEntry struct {
	Inode uint32
	Name  string
}

// ListDir yields, in on-disk record order, the live (child-inode, name)
// pairs of a directory inode. Records whose Inode field is 0 are logically
// free and are not yielded.
func (fs *FileSystem) ListDir(dirInode uint32) ([]DirEntry, error) {
	in, err := fs.readInode(dirInode)
	if err != nil {
		return nil, err
	}
	if !in.IsDir() {
		return nil, fmt.Errorf("%w: inode %d", ErrNotDirectory, dirInode)
	}

	payload, err := fs.readDirectoryPayload(in)
	if err != nil {
		return nil, err
	}

	raw, err := parseDirectoryEntries(payload)
	if err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(raw))
	for _, e := range raw {
		if e.Inode == 0 {
			continue
		}
		out = append(out, DirEntry{Inode: e.Inode, Name: e.Name})
	}
	return out, nil
}

// ReadFile returns the concatenation of data from a regular-file inode's
// direct data-block pointers. It does NOT honor the inode's declared size
// (it returns whole-block reads, including any trailing padding in the
// final block) and does not follow indirect pointers.
func (fs *FileSystem) ReadFile(fileInode uint32) ([]byte, error) {
	in, err := fs.readInode(fileInode)
	if err != nil {
		return nil, err
	}
	if !in.IsRegular() {
		return nil, fmt.Errorf("%w: inode %d", ErrNotFile, fileInode)
	}

	var out []byte
	for _, ptr := range in.DirectPointer {
		if ptr == 0 {
			break
		}
		data, err := fs.image.Block(uint64(ptr))
		if err != nil {
			return nil, fmt.Errorf("could not read data block %d for inode %d: %w", ptr, fileInode, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// ReadFileTruncated behaves like ReadFile but truncates the result at the
// inode's declared size, for callers (the `cat` command) that want
// conventional file-read semantics without changing the core's contract.
func (fs *FileSystem) ReadFileTruncated(fileInode uint32) ([]byte, error) {
	in, err := fs.readInode(fileInode)
	if err != nil {
		return nil, err
	}
	raw, err := fs.ReadFile(fileInode)
	if err != nil {
		return nil, err
	}
	size := in.Size()
	if uint64(len(raw)) > size {
		raw = raw[:size]
	}
	return raw, nil
}

// Resolve walks a '/'-separated path starting from startDir, returning the
// inode number it resolves to. A leading '/' anchors at the root inode (2)
// regardless of startDir.
func (fs *FileSystem) Resolve(path string, startDir uint32) (uint32, error) {
	current := startDir
	if strings.HasPrefix(path, "/") {
		current = RootInode
	}

	components := splitPath(path)
	for idx, comp := range components {
		if comp == "" {
			continue
		}
		entries, err := fs.ListDir(current)
		if err != nil {
			return 0, err
		}

		var found *DirEntry
		for i := range entries {
			if entries[i].Name == comp {
				found = &entries[i]
				break
			}
		}
		if found == nil {
			return 0, fmt.Errorf("%w: %q", ErrNoSuchEntry, comp)
		}

		isLast := idx == len(components)-1
		if !isLast {
			childInode, err := fs.readInode(found.Inode)
			if err != nil {
				return 0, err
			}
			if !childInode.IsDir() {
				return 0, fmt.Errorf("%w: %q", ErrNotADirInPath, comp)
			}
		}
		current = found.Inode
	}
	return current, nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// InsertEntry adds a new name -> childInode mapping to dirInode's directory
// payload. It does not allocate inodes and does not allocate new data
// blocks: the resulting directory must still fit within the directory's
// existing direct data blocks.
func (fs *FileSystem) InsertEntry(dirInode uint32, name string, childInode uint32, childType uint8) error {
	in, err := fs.readInode(dirInode)
	if err != nil {
		return err
	}
	if !in.IsDir() {
		return fmt.Errorf("%w: inode %d", ErrNotDirectory, dirInode)
	}

	payload, err := fs.readDirectoryPayload(in)
	if err != nil {
		return err
	}

	entries, err := parseDirectoryEntries(payload)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: directory %d has no existing entries to anchor on", ErrCorruptImage, dirInode)
	}

	newRecordLen := int(dirEntryMinLen(len(name)))
	blockSize := int(fs.Superblock.BlockSize)

	// locate the final record and the offset it starts at; a trailing free
	// record (inode 0) is used as the anchor like any other record.
	lastIdx := len(entries) - 1
	lastOffset := 0
	for i := 0; i < lastIdx; i++ {
		lastOffset += int(entries[i].EntrySize)
	}
	last := entries[lastIdx]

	lastMinLen := int(dirEntryMinLen(int(last.NameLen)))
	blockStart := (lastOffset / blockSize) * blockSize
	blockEnd := blockStart + blockSize
	slackAfterShrink := blockEnd - (lastOffset + lastMinLen)

	if newRecordLen > slackAfterShrink {
		return fmt.Errorf("%w: need %d bytes, only %d available in last block of directory %d",
			ErrInsertBudgetExceeded, newRecordLen, slackAfterShrink, dirInode)
	}

	// shrink the last record to its minimum length.
	entries[lastIdx].EntrySize = uint16(lastMinLen)

	newEntryOffset := lastOffset + lastMinLen
	newEntry := DirectoryEntry{
		Inode:     childInode,
		EntrySize: uint16(newRecordLen),
		NameLen:   uint8(len(name)),
		FileType:  childType,
		Name:      name,
	}
	// extend the new record out to the block boundary so the last record
	// in the block always terminates exactly on the boundary.
	if newEntryOffset+int(newEntry.EntrySize) < blockEnd {
		newEntry.EntrySize = uint16(blockEnd - newEntryOffset)
	}
	entries = append(entries, newEntry)

	out := make([]byte, len(payload))
	cursor := 0
	for _, e := range entries {
		putDirectoryEntry(out, cursor, e)
		cursor += int(e.EntrySize)
	}

	return fs.writeDirectoryPayload(in, out)
}

// writeDirectoryPayload writes buf back into dirInode's direct data blocks
// one block at a time, up to the original total payload size. It never
// allocates new blocks.
func (fs *FileSystem) writeDirectoryPayload(in *Inode, buf []byte) error {
	blocks, err := fs.dataBlockNumbers(in, in.Size(), true)
	if err != nil {
		return err
	}

	blockSize := int(fs.Superblock.BlockSize)
	pos := 0
	for _, bn := range blocks {
		if pos >= len(buf) {
			break
		}
		dst, err := fs.image.BlockMut(bn)
		if err != nil {
			return fmt.Errorf("could not write directory data block %d: %w", bn, err)
		}
		n := blockSize
		if pos+n > len(buf) {
			n = len(buf) - pos
		}
		copy(dst, buf[pos:pos+n])
		for i := n; i < blockSize; i++ {
			dst[i] = 0
		}
		pos += n
	}
	if pos < len(buf) {
		return fmt.Errorf("%w: mutated directory payload (%d bytes) exceeds inode %d's existing data blocks", ErrInsertBudgetExceeded, len(buf), in.Number)
	}
	return nil
}

// FirstFreeInode reports the first unused inode number according to the
// inode usage bitmap of the group containing parent, purely as a
// convenience for the `mkdir` REPL command. It does not mark the bit used
// or initialize any inode fields; inode allocation itself is out of scope.
func (fs *FileSystem) FirstFreeInode(parent uint32) (uint32, error) {
	group := 0
	if fs.Superblock.InodesPerGroup != 0 {
		group = int((parent - 1) / fs.Superblock.InodesPerGroup)
	}
	if group >= len(fs.groupDescriptors) {
		group = 0
	}

	bmBlock := uint64(fs.groupDescriptors[group].InodeBitmapBlock)
	raw, err := fs.image.Block(bmBlock)
	if err != nil {
		return 0, fmt.Errorf("could not read inode bitmap for group %d: %w", group, err)
	}
	bm := bitmap.FromBytes(raw)
	free := bm.FirstFree(0)
	if free < 0 {
		logrus.Warn("ext2: no free inode bits found in group bitmap")
		return 0, fmt.Errorf("no free inode found in group %d", group)
	}
	// bitmap bit 0 corresponds to inode (group*InodesPerGroup + 1).
	return uint32(group)*fs.Superblock.InodesPerGroup + uint32(free) + 1, nil
}
