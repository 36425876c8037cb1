package ext2

import (
	"fmt"

	"github.com/ext2img/ext2shell/backend"
)

// Image is a zero-copy view over the whole device: a single contiguous
// in-memory buffer, indexed by 0-based logical block number. All on-disk
// structures are read directly out of this buffer without copying; writes
// (from the directory mutator) go through to the same backing array.
type Image struct {
	buf         []byte
	blockSize   uint32
	blockOffset int64
	store       backend.Storage
}

// newImageSized reads exactly size bytes from b into memory, starting at
// an Image whose block 0 begins blockOffset blocks into the on-disk
// numbering scheme. The size is always supplied explicitly by the caller
// (rather than taken from b.Stat()) because a backend.SubStorage's Stat()
// reports the size of the whole underlying device, not the sub-region
// alone — a caller opening an ext2 filesystem embedded at an offset
// inside a larger partitioned image must supply the partition's own size.
func newImageSized(b backend.Storage, blockSize uint32, blockOffset, size int64) (*Image, error) {
	buf := make([]byte, size)
	if _, err := b.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("could not read image into memory: %w", err)
	}
	return &Image{
		buf:         buf,
		blockSize:   blockSize,
		blockOffset: blockOffset,
		store:       b,
	}, nil
}

// BlockSize returns the device's block size in bytes.
func (img *Image) BlockSize() uint32 {
	return img.blockSize
}

// index translates an absolute on-disk block number into a byte offset into
// the mapped buffer, honoring blockOffset per spec: slice = blocks[block_number - block_offset].
func (img *Image) index(blockNumber uint64) (int64, error) {
	rel := int64(blockNumber) - img.blockOffset
	if rel < 0 {
		return 0, fmt.Errorf("%w: block %d is before block_offset %d", ErrCorruptImage, blockNumber, img.blockOffset)
	}
	off := rel * int64(img.blockSize)
	if off < 0 || off+int64(img.blockSize) > int64(len(img.buf)) {
		return 0, fmt.Errorf("%w: block %d (offset %d) outside image of %d bytes", ErrCorruptImage, blockNumber, off, len(img.buf))
	}
	return off, nil
}

// Block returns a read-only view of the on-disk block numbered blockNumber.
func (img *Image) Block(blockNumber uint64) ([]byte, error) {
	off, err := img.index(blockNumber)
	if err != nil {
		return nil, err
	}
	return img.buf[off : off+int64(img.blockSize) : off+int64(img.blockSize)], nil
}

// BlockMut returns a mutable view of the on-disk block numbered blockNumber;
// writes through this slice are visible to every other reader of the same
// image, since the image is a single backing buffer (no write-through to
// disk happens here — see Flush).
func (img *Image) BlockMut(blockNumber uint64) ([]byte, error) {
	return img.Block(blockNumber)
}

// ReadAt returns the byte range [byteOffset, byteOffset+length) of the
// mapped buffer, which may span multiple blocks; byteOffset is relative to
// the start of the buffer, not to a block. Used by the inode resolver,
// whose records may not be block-aligned.
func (img *Image) ReadAt(byteOffset int64, length int) ([]byte, error) {
	if byteOffset < 0 || length < 0 || byteOffset+int64(length) > int64(len(img.buf)) {
		return nil, fmt.Errorf("%w: range [%d,%d) outside image of %d bytes", ErrCorruptImage, byteOffset, byteOffset+int64(length), len(img.buf))
	}
	return img.buf[byteOffset : byteOffset+int64(length)], nil
}

// Flush writes the in-memory buffer back to the backend storage the image
// was opened from. Mutations are otherwise in-memory only: losing the
// process without calling Flush loses any mutation.
func (img *Image) Flush() error {
	w, err := img.store.Writable()
	if err != nil {
		return fmt.Errorf("image is not writable: %w", err)
	}
	if _, err := w.WriteAt(img.buf, 0); err != nil {
		return fmt.Errorf("could not flush image: %w", err)
	}
	return nil
}
