// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/tananfs/lib/blockdev"
	"github.com/bureau-foundation/tananfs/lib/layout"
)

// FormatVersion identifies the snapshot layout. Bump on incompatible
// changes.
const FormatVersion = 1

// snapshotMagic opens every snapshot file.
var snapshotMagic = [8]byte{'T', 'N', 'F', 'S', 'N', 'A', 'P', '1'}

// copyChunkLen is the unit Save reads the device in.
const copyChunkLen = 1 << 20

// ErrBadSnapshot means the stream is not a snapshot or its manifest
// does not parse.
var ErrBadSnapshot = errors.New("image: not a TananFS snapshot")

// ErrDigestMismatch means the decompressed image does not hash to the
// digest the manifest promises.
var ErrDigestMismatch = errors.New("image: digest mismatch")

// Manifest describes a snapshot. It is encoded as deterministic CBOR
// between the magic and the compressed image.
type Manifest struct {
	// Version is the snapshot format version.
	Version int `cbor:"version"`

	// BlockSize, InodeCount, and BlockCount mirror the captured
	// superblock.
	BlockSize  uint32 `cbor:"block_size"`
	InodeCount uint64 `cbor:"inode_count"`
	BlockCount uint64 `cbor:"block_count"`

	// ImageLen is the uncompressed image length in bytes.
	ImageLen uint64 `cbor:"image_len"`

	// Digest is the BLAKE3 hash of the uncompressed image.
	Digest [32]byte `cbor:"digest"`

	// CreatedAt is the capture time in seconds since the epoch.
	CreatedAt int64 `cbor:"created_at"`
}

// encMode encodes manifests with Core Deterministic Encoding, so the
// same volume state always produces identical snapshot headers.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("image: CBOR encoder initialization failed: " + err.Error())
	}
}

// Save captures the volume on device into w. The device must hold a
// formatted volume; the image covers byte 0 through the end of its
// block region.
func Save(device blockdev.Device, w io.Writer, now time.Time) (*Manifest, error) {
	super, err := layout.Detect(device)
	if err != nil {
		return nil, err
	}
	imageLen := super.BlockRegionEnd()

	// First pass: hash the raw image.
	hasher := blake3.New()
	if err := readImage(device, imageLen, func(chunk []byte) error {
		_, hashErr := hasher.Write(chunk)
		return hashErr
	}); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version:    FormatVersion,
		BlockSize:  super.BlockSize,
		InodeCount: super.InodeCount,
		BlockCount: super.BlockCount,
		ImageLen:   imageLen,
		CreatedAt:  now.Unix(),
	}
	copy(manifest.Digest[:], hasher.Sum(nil))

	if err := writeHeader(w, manifest); err != nil {
		return nil, err
	}

	// Second pass: compress the image into the stream.
	compressor, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("image: starting compressor: %w", err)
	}
	if err := readImage(device, imageLen, func(chunk []byte) error {
		_, writeErr := compressor.Write(chunk)
		return writeErr
	}); err != nil {
		compressor.Close()
		return nil, err
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("image: finishing compressor: %w", err)
	}
	return manifest, nil
}

// Restore reads a snapshot from r and writes the image onto device.
// The image is decompressed and digest-checked in memory first; the
// device is untouched unless the snapshot is whole.
func Restore(r io.Reader, device blockdev.Device) (*Manifest, error) {
	manifest, err := ReadManifest(r)
	if err != nil {
		return nil, err
	}
	if uint64(device.Size()) < manifest.ImageLen {
		return nil, fmt.Errorf("image: device of %d bytes cannot hold a %d-byte image",
			device.Size(), manifest.ImageLen)
	}

	decompressor, err := zstd.NewReader(io.LimitReader(r, int64(manifest.ImageLen)+zstdOverhead(manifest.ImageLen)))
	if err != nil {
		return nil, fmt.Errorf("image: starting decompressor: %w", err)
	}
	defer decompressor.Close()

	raw := make([]byte, manifest.ImageLen)
	if _, err := io.ReadFull(decompressor, raw); err != nil {
		return nil, fmt.Errorf("image: decompressing: %w", err)
	}

	digest := blake3.Sum256(raw)
	if !bytes.Equal(digest[:], manifest.Digest[:]) {
		return nil, ErrDigestMismatch
	}

	if err := device.WriteAt(raw, 0); err != nil {
		return nil, fmt.Errorf("image: writing restored image: %w", err)
	}
	return manifest, nil
}

// ReadManifest reads and validates the snapshot header, leaving r
// positioned at the compressed image.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if magic != snapshotMagic {
		return nil, ErrBadSnapshot
	}

	var manifestLen [4]byte
	if _, err := io.ReadFull(r, manifestLen[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	encoded := make([]byte, binary.LittleEndian.Uint32(manifestLen[:]))
	if _, err := io.ReadFull(r, encoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	manifest := &Manifest{}
	if err := cbor.Unmarshal(encoded, manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest does not parse: %v", ErrBadSnapshot, err)
	}
	if manifest.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d, this build reads %d",
			ErrBadSnapshot, manifest.Version, FormatVersion)
	}
	return manifest, nil
}

func writeHeader(w io.Writer, manifest *Manifest) error {
	encoded, err := encMode.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("image: encoding manifest: %w", err)
	}
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("image: writing header: %w", err)
	}
	var manifestLen [4]byte
	binary.LittleEndian.PutUint32(manifestLen[:], uint32(len(encoded)))
	if _, err := w.Write(manifestLen[:]); err != nil {
		return fmt.Errorf("image: writing header: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("image: writing manifest: %w", err)
	}
	return nil
}

// readImage feeds the first imageLen device bytes to visit in chunks.
func readImage(device blockdev.Device, imageLen uint64, visit func([]byte) error) error {
	chunk := make([]byte, copyChunkLen)
	for offset := uint64(0); offset < imageLen; {
		n := uint64(len(chunk))
		if imageLen-offset < n {
			n = imageLen - offset
		}
		if err := device.ReadAt(chunk[:n], int64(offset)); err != nil {
			return fmt.Errorf("image: reading device at %d: %w", offset, err)
		}
		if err := visit(chunk[:n]); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

// zstdOverhead bounds how much larger than the payload a zstd frame
// can reasonably be; used only to limit reads of the compressed
// stream.
func zstdOverhead(payloadLen uint64) int64 {
	return int64(payloadLen/8) + 1<<16
}
