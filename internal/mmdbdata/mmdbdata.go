// Package mmdbdata is the minimal, real implementation of the two
// "external collaborators" spec.md §6 treats as out of scope for the
// CORE: the data-section writer the encoder calls at write time
// (internal/radixtree.DataPositioner), and the metadata-section writer
// that lets cmd/mmdbtree-build emit a complete, loadable MaxMind-DB
// file. It is deliberately not a general MaxMind-DB encoder/decoder —
// only the handful of data types a trie builder needs (strings, small
// integers, maps, arrays) are supported, grounded on the teacher's
// pkg/iptrie/binary.go fixed-width on-disk-structure idiom
// (encoding/binary, explicit big-endian byte math) rather than pulling
// in a general serialization library the rest of the pack never uses
// for this.
package mmdbdata

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// Type identifies a MaxMind-DB data-section value's control-byte type.
// Only the types this builder emits are named, plus TypePointer, which
// encodeValue never writes.
type Type uint8

const (
	TypePointer Type = 1
	TypeString  Type = 2
	TypeBytes   Type = 4
	TypeUint16  Type = 5
	TypeUint32  Type = 6
	TypeMap     Type = 7
	TypeUint64  Type = 9
	TypeArray   Type = 11
	TypeBoolean Type = 14
)

// metadataStartMarker precedes the metadata section in every MaxMind DB
// file; a real reader locates it by scanning backward from EOF.
var metadataStartMarker = []byte("\xab\xcd\xefMaxMind.com")

// Writer accumulates the on-disk data section: one control-byte-prefixed
// value per distinct payload key, appended in first-seen order. It
// implements internal/radixtree.DataPositioner and is consumed only at
// Tree.WriteSearchTree time, per spec.md §6.2 — "called at most once per
// distinct payload key"; Writer memoizes defensively so a caller that
// violates that precondition still gets a stable answer rather than a
// duplicated data-section entry.
type Writer struct {
	buf      bytes.Buffer
	position map[string]uint32
}

// NewWriter returns an empty data-section writer.
func NewWriter() *Writer {
	return &Writer{position: make(map[string]uint32)}
}

// Position implements internal/radixtree.DataPositioner: it encodes
// value's MaxMind-DB representation the first time key is seen and
// returns its byte offset within the data section on every call.
func (w *Writer) Position(key string, value any) (uint32, error) {
	if pos, ok := w.position[key]; ok {
		return pos, nil
	}
	pos := uint32(w.buf.Len()) //nolint:gosec // data sections stay well under 4GiB for this builder
	if err := encodeValue(&w.buf, value); err != nil {
		return 0, fmt.Errorf("mmdbdata: encoding key %q: %w", key, err)
	}
	w.position[key] = pos
	return pos, nil
}

// Len reports the current size of the data section in bytes.
func (w *Writer) Len() int { return w.buf.Len() }

// WriteTo writes the accumulated data section to dst, implementing
// io.WriterTo so cmd/mmdbtree-build can stream it straight after the
// search-tree section.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.buf.Bytes())
	return int64(n), err
}

// Metadata is the handful of MaxMind-DB metadata fields
// cmd/mmdbtree-build needs to emit for the file to be loadable by a real
// reader, per spec.md §6.2 and the format description it references.
type Metadata struct {
	DatabaseType             string
	Description              map[string]string
	IPVersion                int
	RecordSize               int
	NodeCount                int
	BuildEpoch               uint64
	Languages                []string
	BinaryFormatMajorVersion uint16
	BinaryFormatMinorVersion uint16
}

// MetadataWriter emits Metadata as a MaxMind-DB metadata section,
// preceded by the format's well-known start marker.
type MetadataWriter struct{}

// Write encodes meta and writes metadataStartMarker followed by the
// encoded metadata map to dst.
func (MetadataWriter) Write(dst io.Writer, meta Metadata) error {
	languages := make([]any, len(meta.Languages))
	for i, l := range meta.Languages {
		languages[i] = l
	}
	description := make(map[string]any, len(meta.Description))
	for lang, text := range meta.Description {
		description[lang] = text
	}

	fields := map[string]any{
		"binary_format_major_version": uint32(meta.BinaryFormatMajorVersion),
		"binary_format_minor_version": uint32(meta.BinaryFormatMinorVersion),
		"build_epoch":                 meta.BuildEpoch,
		"database_type":               meta.DatabaseType,
		"description":                 description,
		"ip_version":                  uint32(meta.IPVersion), //nolint:gosec // 4 or 6
		"languages":                   languages,
		"node_count":                  uint32(meta.NodeCount), //nolint:gosec // bounded by pool size
		"record_size":                 uint32(meta.RecordSize),
	}

	var buf bytes.Buffer
	if err := encodeValue(&buf, fields); err != nil {
		return fmt.Errorf("mmdbdata: encoding metadata: %w", err)
	}

	if _, err := dst.Write(metadataStartMarker); err != nil {
		return err
	}
	_, err := dst.Write(buf.Bytes())
	return err
}

// encodeValue writes value's MaxMind-DB control-byte-prefixed encoding
// to buf. Supported Go types: string, []byte, uint16/uint32/uint64, bool,
// map[string]any (keys sorted for determinism), []any and []string.
func encodeValue(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case string:
		writeControlAndSize(buf, TypeString, len(v))
		buf.WriteString(v)

	case []byte:
		writeControlAndSize(buf, TypeBytes, len(v))
		buf.Write(v)

	case bool:
		size := 0
		if v {
			size = 1
		}
		writeControlAndSize(buf, TypeBoolean, size)

	case uint16:
		b := trimLeadingZeros(be(uint64(v), 2))
		writeControlAndSize(buf, TypeUint16, len(b))
		buf.Write(b)

	case uint32:
		b := trimLeadingZeros(be(uint64(v), 4))
		writeControlAndSize(buf, TypeUint32, len(b))
		buf.Write(b)

	case uint64:
		b := trimLeadingZeros(be(v, 8))
		writeControlAndSize(buf, TypeUint64, len(b))
		buf.Write(b)

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeControlAndSize(buf, TypeMap, len(keys))
		for _, k := range keys {
			writeControlAndSize(buf, TypeString, len(k))
			buf.WriteString(k)
			if err := encodeValue(buf, v[k]); err != nil {
				return err
			}
		}

	case []any:
		writeControlAndSize(buf, TypeArray, len(v))
		for _, item := range v {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}

	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return encodeValue(buf, items)

	default:
		return fmt.Errorf("mmdbdata: unsupported value type %T", value)
	}
	return nil
}

// writeControlAndSize writes a MaxMind-DB control byte (3-bit type, 5-bit
// size) plus any overflow size bytes the standard format defines for
// size >= 29. Types above 7 (Uint64, Array, Boolean) don't fit in the
// control byte's 3 type bits: the format's "extended type" form writes
// type bits 0 instead, then a byte holding (type - 7) immediately after
// the control byte, before any size-overflow bytes.
func writeControlAndSize(buf *bytes.Buffer, typ Type, size int) {
	t := byte(typ)
	if t <= 7 {
		writeSizeWithTypeBits(buf, t, size)
		return
	}
	var header bytes.Buffer
	writeSizeWithTypeBits(&header, 0, size)
	buf.WriteByte(header.Bytes()[0])
	buf.WriteByte(t - 7)
	buf.Write(header.Bytes()[1:])
}

func writeSizeWithTypeBits(buf *bytes.Buffer, typeBits byte, size int) {
	switch {
	case size < 29:
		buf.WriteByte(typeBits<<5 | byte(size))
	case size < 285:
		buf.WriteByte(typeBits<<5 | 29)
		buf.WriteByte(byte(size - 29))
	case size < 65821:
		extra := size - 285
		buf.WriteByte(typeBits<<5 | 30)
		buf.WriteByte(byte(extra >> 8))
		buf.WriteByte(byte(extra))
	default:
		extra := size - 65821
		buf.WriteByte(typeBits<<5 | 31)
		buf.WriteByte(byte(extra >> 16))
		buf.WriteByte(byte(extra >> 8))
		buf.WriteByte(byte(extra))
	}
}

// be returns v's big-endian representation in a width-byte buffer.
func be(v uint64, width int) []byte {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// trimLeadingZeros drops leading zero bytes, matching the MaxMind-DB
// convention of encoding integers in their minimal byte length (a value
// of 0 encodes as zero payload bytes).
func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}
