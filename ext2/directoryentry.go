package ext2

import (
	"encoding/binary"
)

// dirEntryHeaderSize is the fixed 8-byte header (inode, entry_size,
// name_length, type_indicator) preceding the name bytes of each record.
const dirEntryHeaderSize = 8

// directory entry type_indicator values.
const (
	dirTypeUnknown  uint8 = 0
	dirTypeRegular  uint8 = 1
	dirTypeDir      uint8 = 2
	dirTypeChardev  uint8 = 3
	dirTypeBlockdev uint8 = 4
	dirTypeFIFO     uint8 = 5
	dirTypeSocket   uint8 = 6
	dirTypeSymlink  uint8 = 7
)

// Exported mirrors of the type_indicator values, for callers (the REPL)
// that need to pass a child type into InsertEntry without reaching into
// package-private constants.
const (
	DirTypeUnknown  = dirTypeUnknown
	DirTypeRegular  = dirTypeRegular
	DirTypeDir      = dirTypeDir
	DirTypeChardev  = dirTypeChardev
	DirTypeBlockdev = dirTypeBlockdev
	DirTypeFIFO     = dirTypeFIFO
	DirTypeSocket   = dirTypeSocket
	DirTypeSymlink  = dirTypeSymlink
)

// DirectoryEntry is one packed variable-length record from a directory's
// data blocks: a name mapped to a child inode number. Inode == 0 marks a
// free (logically deleted) slot.
type DirectoryEntry struct {
	Inode     uint32
	EntrySize uint16
	NameLen   uint8
	FileType  uint8
	Name      string
}

// dirEntryMinLen is the minimum record length for a name of the given
// length: 8-byte header + name + NUL, rounded up to 4-byte alignment.
func dirEntryMinLen(nameLen int) uint16 {
	raw := dirEntryHeaderSize + nameLen + 1
	return uint16(roundUp4(raw))
}

func roundUp4(n int) int {
	return (n + 3) &^ 3
}

// parseDirectoryEntries walks a gathered directory payload record by
// record in on-disk order, returning every record including free
// (inode == 0) slots; callers that only want live entries should filter.
func parseDirectoryEntries(payload []byte) ([]DirectoryEntry, error) {
	var entries []DirectoryEntry
	cursor := 0
	for cursor+dirEntryHeaderSize <= len(payload) {
		inode := binary.LittleEndian.Uint32(payload[cursor : cursor+4])
		entrySize := binary.LittleEndian.Uint16(payload[cursor+4 : cursor+6])
		nameLen := payload[cursor+6]
		fileTypeIndicator := payload[cursor+7]

		if entrySize == 0 {
			break
		}
		nameEnd := cursor + dirEntryHeaderSize + int(nameLen)
		if nameEnd > len(payload) {
			break
		}
		name := string(payload[cursor+dirEntryHeaderSize : nameEnd])

		entries = append(entries, DirectoryEntry{
			Inode:     inode,
			EntrySize: entrySize,
			NameLen:   nameLen,
			FileType:  fileTypeIndicator,
			Name:      name,
		})

		next := cursor + int(entrySize)
		if next <= cursor {
			break
		}
		cursor = next
	}
	return entries, nil
}

// putDirectoryEntry serializes a directory entry header + name into dst at
// offset off; dst must have at least dirEntryMinLen(len(name)) bytes
// available from off, and callers are responsible for zero-padding any
// slack between the name and the end of the record.
func putDirectoryEntry(dst []byte, off int, e DirectoryEntry) {
	binary.LittleEndian.PutUint32(dst[off:off+4], e.Inode)
	binary.LittleEndian.PutUint16(dst[off+4:off+6], e.EntrySize)
	dst[off+6] = e.NameLen
	dst[off+7] = e.FileType
	copy(dst[off+dirEntryHeaderSize:], e.Name)
}
