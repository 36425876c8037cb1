// Package ext2 implements a minimal reader/mutator for the ext2 filesystem
// format: superblock and group descriptor parsing, inode resolution, path
// walking, directory enumeration, and a narrow directory-mutation
// operation used by an interactive image browser.
//
// It does not implement free-space allocation, journaling (ext2 has none),
// multi-level indirect block traversal beyond single-indirect directory
// reads, or extended attributes.
package ext2

import (
	"errors"
)

const (
	// RootInode is the fixed inode number of the filesystem root directory.
	RootInode uint32 = 2

	ext2Magic uint16 = 0xEF53

	// directMinInodeSize is the minimum on-disk inode record size ext2 allows.
	directMinInodeSize uint16 = 128

	directPointerCount = 12
)

var (
	// ErrNotExt2 is returned when the superblock magic number does not match.
	ErrNotExt2 = errors.New("not an ext2 filesystem")
	// ErrNotDirectory is returned when an operation expecting a directory inode
	// is given something else.
	ErrNotDirectory = errors.New("inode is not a directory")
	// ErrNotFile is returned when an operation expecting a regular file inode
	// is given something else.
	ErrNotFile = errors.New("inode is not a file")
	// ErrNoSuchEntry is returned when a path component cannot be found in a
	// directory listing.
	ErrNoSuchEntry = errors.New("no such entry")
	// ErrNotADirInPath is returned when a non-terminal path component resolves
	// to a non-directory inode.
	ErrNotADirInPath = errors.New("not a directory in path")
	// ErrNoSuchInode is returned when an inode number is zero or exceeds the
	// inode count recorded in the superblock.
	ErrNoSuchInode = errors.New("no such inode")
	// ErrCorruptImage is returned when an on-disk pointer indexes outside the
	// bounds of the mapped image buffer.
	ErrCorruptImage = errors.New("corrupt image: pointer out of bounds")
	// ErrInsertBudgetExceeded is returned by InsertEntry when the new record
	// does not fit in the slack available in the directory's last block.
	ErrInsertBudgetExceeded = errors.New("insert exceeds available slack in last directory block")
)
