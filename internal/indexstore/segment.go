package indexstore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"time"
)

// Segment file layout: a 64-byte header, the float32 vector block, the JSON
// metadata block and a 16-byte footer carrying both checksums.
const (
	MagicBytes    uint32 = 0x53494458
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16
)

// SegmentHeader is the fixed header at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	Dim        uint32
	Rows       uint32
	CreatedAt  int64
	VecOffset  int64
	VecSize    int64
	MetaOffset int64
	MetaSize   int64
	Seq        uint64
}

func (h SegmentHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dim)
	binary.LittleEndian.PutUint32(buf[12:16], h.Rows)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.VecOffset))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.VecSize))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.MetaSize))
	binary.LittleEndian.PutUint64(buf[56:64], h.Seq)
	return buf
}

func decodeHeader(buf []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		Dim:        binary.LittleEndian.Uint32(buf[8:12]),
		Rows:       binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		VecOffset:  int64(binary.LittleEndian.Uint64(buf[24:32])),
		VecSize:    int64(binary.LittleEndian.Uint64(buf[32:40])),
		MetaOffset: int64(binary.LittleEndian.Uint64(buf[40:48])),
		MetaSize:   int64(binary.LittleEndian.Uint64(buf[48:56])),
		Seq:        binary.LittleEndian.Uint64(buf[56:64]),
	}
}

// writeSegment atomically creates path from records. It writes to a .tmp
// file, fsyncs and renames on success.
func writeSegment(path string, seq uint64, dim int, records []Record) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	header := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		Dim:       uint32(dim),
		Rows:      uint32(len(records)),
		CreatedAt: time.Now().Unix(),
		Seq:       seq,
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(make([]byte, HeaderSize)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	vecCRC := crc32.NewIEEE()
	vw := io.MultiWriter(w, vecCRC)
	word := make([]byte, 4)
	for _, r := range records {
		for _, x := range r.Vector {
			binary.LittleEndian.PutUint32(word, math.Float32bits(x))
			if _, err := vw.Write(word); err != nil {
				return fmt.Errorf("writing vectors: %w", err)
			}
		}
	}
	header.VecOffset = int64(HeaderSize)
	header.VecSize = int64(4 * dim * len(records))

	metas := make([]Meta, len(records))
	for i, r := range records {
		metas[i] = Meta{WorkID: r.WorkID, Text: r.Text}
	}
	metaData, err := json.Marshal(metas)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if _, err := w.Write(metaData); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	header.MetaOffset = header.VecOffset + header.VecSize
	header.MetaSize = int64(len(metaData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], vecCRC.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(metaData))
	binary.LittleEndian.PutUint32(footer[8:12], uint32(len(records)))
	binary.LittleEndian.PutUint32(footer[12:16], MagicBytes)
	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing segment: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

// segmentData is a decoded, checksum-verified segment.
type segmentData struct {
	header  SegmentHeader
	vectors []float32
	metas   []Meta
}

func readSegment(path string) (*segmentData, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segment file: %w", err)
	}
	if len(buf) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: %s is truncated", ErrCorruptSegment, path)
	}
	header := decodeHeader(buf[:HeaderSize])
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", ErrCorruptSegment, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSegment, header.Version)
	}
	end := header.MetaOffset + header.MetaSize
	if header.VecOffset != int64(HeaderSize) ||
		header.VecSize != 4*int64(header.Dim)*int64(header.Rows) ||
		end+int64(FooterSize) != int64(len(buf)) {
		return nil, fmt.Errorf("%w: %s has inconsistent offsets", ErrCorruptSegment, path)
	}
	footer := buf[end:]
	vecBlock := buf[header.VecOffset : header.VecOffset+header.VecSize]
	metaBlock := buf[header.MetaOffset:end]
	if crc32.ChecksumIEEE(vecBlock) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("%w: vector checksum mismatch in %s", ErrCorruptSegment, path)
	}
	if crc32.ChecksumIEEE(metaBlock) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("%w: metadata checksum mismatch in %s", ErrCorruptSegment, path)
	}

	vectors := make([]float32, len(vecBlock)/4)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(vecBlock[4*i:]))
	}
	var metas []Meta
	if err := json.Unmarshal(metaBlock, &metas); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata: %v", ErrCorruptSegment, err)
	}
	if len(metas) != int(header.Rows) {
		return nil, fmt.Errorf("%w: %d metadata rows for %d vectors", ErrCorruptSegment, len(metas), header.Rows)
	}
	return &segmentData{header: header, vectors: vectors, metas: metas}, nil
}
