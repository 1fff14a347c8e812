// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package internal implements the chunk layer of the brio binary
// container: logical blocks split into fixed-size, checksummed chunks.
package internal

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/grailbio/brio/errors"
)

const (
	chunkHeaderSize = 28
	// ChunkSize is the size of every chunk in a file.
	ChunkSize = 32 << 10
	// MaxChunkPayloadSize is the largest payload a single chunk carries.
	MaxChunkPayloadSize = ChunkSize - chunkHeaderSize
)

// Chunk layout:
//
//	magic [8B]
//	crc   [4B LE]
//	flag  [4B LE]
//	size  [4B LE]
//	total [4B LE]
//	index [4B LE]
//	data [size]
//	padding [32768 - 28 - size]
//
// magic: one of MagicHeader, MagicBody, MagicTrailer.
// size: size of the chunk payload (data). size <= 32768 - 28.
// padding: filler that makes the chunk exactly 32768 bytes.
//
// total: the number of chunks in the block.
// index: the index of the chunk within the block, starting at 0.
// flag: unused, always 0.
//
// crc: IEEE CRC32 of flag, size, total, index and data. Padding is not
// covered.
type chunkHeader [chunkHeaderSize]byte

var chunkPadding [MaxChunkPayloadSize]byte

func init() {
	temp := [4]byte{0xde, 0xad, 0xbe, 0xef}
	for i := range chunkPadding {
		chunkPadding[i] = temp[i%len(temp)]
	}
}

// Seek to "off". Returns nil iff the seek ptr moves to "off".
func Seek(r io.ReadSeeker, off int64) error {
	n, err := r.Seek(off, io.SeekStart)
	if err != nil {
		return err
	}
	if n != off {
		return errors.E(errors.Format, fmt.Sprintf("seek: got %v, expect %v", n, off))
	}
	return nil
}

// ChunkWriter implements low-level block-write operations. It takes logical
// block and stores it as a sequence of chunks. Thread compatible.
type ChunkWriter struct {
	nWritten int64
	w        io.Writer
	err      *errors.Once
	crc      hash.Hash32
}

// NewChunkWriter creates a new chunk writer. Any error is reported through
// "err".
func NewChunkWriter(w io.Writer, err *errors.Once) *ChunkWriter {
	return &ChunkWriter{w: w, err: err, crc: crc32.New(IEEECRC)}
}

// Len returns the number of bytes successfully written so far. It is the
// file offset of the next block. The value is meaningful only when
// err.Err()==nil.
func (w *ChunkWriter) Len() int64 {
	return w.nWritten
}

// Write one block. An error is reported through w.err.
func (w *ChunkWriter) Write(magic MagicBytes, payload []byte) {
	var header chunkHeader
	copy(header[:], magic[:])

	chunkIndex := 0
	totalChunks := (len(payload)-1)/MaxChunkPayloadSize + 1
	for {
		var chunkPayload []byte
		lastChunk := false
		if len(payload) <= MaxChunkPayloadSize {
			lastChunk = true
			chunkPayload = payload
			payload = nil
		} else {
			chunkPayload = payload[:MaxChunkPayloadSize]
			payload = payload[MaxChunkPayloadSize:]
		}
		binary.LittleEndian.PutUint32(header[12:], uint32(0))
		binary.LittleEndian.PutUint32(header[16:], uint32(len(chunkPayload)))
		binary.LittleEndian.PutUint32(header[20:], uint32(totalChunks))
		binary.LittleEndian.PutUint32(header[24:], uint32(chunkIndex))

		w.crc.Reset()
		w.crc.Write(header[12:])
		w.crc.Write(chunkPayload)
		binary.LittleEndian.PutUint32(header[8:], w.crc.Sum32())
		w.doWrite(header[:])
		w.doWrite(chunkPayload)
		chunkIndex++
		if lastChunk {
			if paddingSize := MaxChunkPayloadSize - len(chunkPayload); paddingSize > 0 {
				w.doWrite(chunkPadding[:paddingSize])
			}
			break
		}
	}
	if chunkIndex != totalChunks {
		panic(fmt.Sprintf("nchunks %d, total %d", chunkIndex, totalChunks))
	}
}

func (w *ChunkWriter) doWrite(data []byte) {
	if w.err.Err() != nil {
		return
	}
	n, err := w.w.Write(data)
	w.nWritten += int64(n)
	if err != nil {
		w.err.Set(errors.E(errors.FileAccess, "write chunk", err))
		return
	}
	if n != len(data) {
		w.err.Set(errors.E(errors.FileAccess, fmt.Sprintf("short write: %d of %d bytes", n, len(data))))
	}
}

// ChunkScanner reads a sequence of chunks and reconstructs a logical
// block. Thread compatible.
type ChunkScanner struct {
	r   io.ReadSeeker
	err *errors.Once

	fileSize int64
	off      int64

	magic  MagicBytes
	chunks [][]byte

	pool                 [][]byte
	unused               int // the first unused buf in pool.
	approxChunksPerBlock float64
}

// NewChunkScanner creates a new chunk scanner. Any error is reported through "err".
func NewChunkScanner(r io.ReadSeeker, err *errors.Once) *ChunkScanner {
	rx := &ChunkScanner{r: r, err: err}
	var e error
	if rx.fileSize, e = r.Seek(0, io.SeekEnd); e != nil {
		rx.err.Set(e)
	}
	rx.err.Set(Seek(r, 0))
	return rx
}

// Size returns the size of the underlying file.
func (r *ChunkScanner) Size() int64 { return r.fileSize }

// Tell returns the file offset of the next block to be read.
// Any error is reported in r.Err()
func (r *ChunkScanner) Tell() int64 {
	return r.off
}

// Seek moves the read pointer so that next Scan() will move to the block at the
// given file offset. Any error is reported in r.Err()
func (r *ChunkScanner) Seek(off int64) {
	r.off = off
	r.err.Set(Seek(r.r, off))
}

// Scan reads the next block. It returns false on EOF or any error.
// A clean EOF is reported as io.EOF; a file that ends in the middle of
// a block as io.ErrUnexpectedEOF.
func (r *ChunkScanner) Scan() bool {
	r.resetChunks()
	r.magic = MagicInvalid
	if r.err.Err() != nil {
		return false
	}
	totalChunks := -1
	for {
		chunkMagic, nchunks, index, chunkPayload := r.readChunk(len(r.chunks) > 0)
		if chunkMagic == MagicInvalid || r.err.Err() != nil {
			return false
		}
		if len(r.chunks) == 0 {
			r.magic = chunkMagic
			totalChunks = nchunks
		}
		if chunkMagic != r.magic {
			r.err.Set(errors.E(errors.Format, fmt.Sprintf("magic number changed in the middle of a chunk sequence, got %v, expect %v",
				chunkMagic, r.magic)))
			return false
		}
		if len(r.chunks) != index {
			r.err.Set(errors.E(errors.Format, fmt.Sprintf("chunk index mismatch, got %v, expect %v for magic %x",
				index, len(r.chunks), r.magic)))
			return false
		}
		if nchunks != totalChunks {
			r.err.Set(errors.E(errors.Format, fmt.Sprintf("chunk nchunk mismatch, got %v, expect %v for magic %x",
				nchunks, totalChunks, r.magic)))
			return false
		}
		r.chunks = append(r.chunks, chunkPayload)
		if index == totalChunks-1 {
			break
		}
	}
	return true
}

// Block returns the current block contents.
//
// REQUIRES: Last Scan() call returned true.
func (r *ChunkScanner) Block() (MagicBytes, [][]byte) {
	return r.magic, r.chunks
}

// Read one chunk. On Error or EOF, returns MagicInvalid. The caller should
// check r.err.Err() to distinguish EOF and a real error. When inBlock is
// true, EOF is reported as io.ErrUnexpectedEOF.
func (r *ChunkScanner) readChunk(inBlock bool) (MagicBytes, int, int, []byte) {
	chunkBuf := r.allocChunk()
	n, err := io.ReadFull(r.r, chunkBuf)
	r.off += int64(n)
	if err != nil {
		if err == io.EOF && inBlock {
			err = io.ErrUnexpectedEOF
		}
		r.err.Set(err)
		return MagicInvalid, 0, 0, nil
	}
	header := chunkBuf[:chunkHeaderSize]

	var magic MagicBytes
	copy(magic[:], header[:])
	expectedCsum := binary.LittleEndian.Uint32(header[8:])
	size := binary.LittleEndian.Uint32(header[16:])
	totalChunks := int(binary.LittleEndian.Uint32(header[20:]))
	index := int(binary.LittleEndian.Uint32(header[24:]))
	if size > MaxChunkPayloadSize {
		r.err.Set(errors.E(errors.Format, fmt.Sprintf("invalid chunk size %d", size)))
		return MagicInvalid, 0, 0, nil
	}

	chunkPayload := chunkBuf[chunkHeaderSize : chunkHeaderSize+size]
	if actualCsum := crc32.Checksum(chunkBuf[12:chunkHeaderSize+size], IEEECRC); expectedCsum != actualCsum {
		r.err.Set(errors.E(errors.Format, fmt.Sprintf("chunk checksum mismatch, expect %d, got %d",
			expectedCsum, actualCsum)))
		return MagicInvalid, 0, 0, nil
	}
	return magic, totalChunks, index, chunkPayload
}

func (r *ChunkScanner) resetChunks() {
	// Avoid keeping too much data in the freepool.  If the pool size exceeds 2x
	// the avg size of recent blocks, trim it down.
	nChunks := float64(len(r.chunks))
	if r.approxChunksPerBlock == 0 {
		r.approxChunksPerBlock = nChunks
	} else {
		r.approxChunksPerBlock = r.approxChunksPerBlock*0.9 + nChunks*0.1
	}
	max := int(r.approxChunksPerBlock*2) + 1
	if len(r.pool) > max {
		r.pool = r.pool[:max]
	}
	r.unused = 0
	r.chunks = r.chunks[:0]
}

func (r *ChunkScanner) allocChunk() []byte {
	for len(r.pool) <= r.unused {
		r.pool = append(r.pool, make([]byte, ChunkSize))
	}
	b := r.pool[r.unused]
	r.unused++
	return b
}

// LastMagic returns the magic number of the file's last chunk without
// verifying its checksum. Failures are not reported through the
// scanner's error. The read pointer is left at an undefined position.
func (r *ChunkScanner) LastMagic() (MagicBytes, bool) {
	if r.fileSize < ChunkSize || r.fileSize%ChunkSize != 0 {
		return MagicInvalid, false
	}
	var magic MagicBytes
	if err := Seek(r.r, r.fileSize-ChunkSize); err != nil {
		return MagicInvalid, false
	}
	if _, err := io.ReadFull(r.r, magic[:]); err != nil {
		return MagicInvalid, false
	}
	return magic, true
}

// ReadLastBlock reads the trailer. Sets err if the trailer does not exist, or
// is corrupt. After the call, the read pointer is at an undefined position so
// the user must call Seek() explicitly.
func (r *ChunkScanner) ReadLastBlock() (MagicBytes, [][]byte) {
	r.resetChunks()
	if r.fileSize < ChunkSize {
		r.err.Set(errors.E(errors.Format, "file too short for a trailer"))
		return MagicInvalid, nil
	}
	r.Seek(r.fileSize - ChunkSize)
	magic, totalChunks, index, payload := r.readChunk(false)
	if r.err.Err() != nil {
		return MagicInvalid, nil
	}
	if magic != MagicTrailer {
		r.err.Set(errors.E(errors.Format, fmt.Sprintf("missing trailer; found magic %v", magic)))
		return MagicInvalid, nil
	}
	if index == 0 && totalChunks == 1 {
		// Fast path for a single-chunk trailer.
		return magic, [][]byte{payload}
	}
	start := r.fileSize - int64(index+1)*ChunkSize
	if start < 0 {
		r.err.Set(errors.E(errors.Format, "trailer extends past the start of the file"))
		return MagicInvalid, nil
	}
	r.Seek(start)
	if !r.Scan() {
		r.err.Set(errors.E(errors.Format, "failed to read trailer"))
		return MagicInvalid, nil
	}
	return r.magic, r.chunks
}
