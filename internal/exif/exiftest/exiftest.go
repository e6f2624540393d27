// Package exiftest builds small EXIF payloads for tests.
//
// The output is a bare little-endian TIFF structure ("II*\x00..."), which is
// exactly what a JPEG's APP1 segment carries after the "Exif\x00\x00" prefix.
// The EXIF decoder accepts it directly, so tests never need binary fixtures
// checked into the repo.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Fields selects which tags to write. Zero values are omitted.
type Fields struct {
	Make             string
	Model            string
	DateTimeOriginal string // "2006:01:02 15:04:05"
	Width, Height    uint32
	Latitude         float64 // decimal degrees, negative = south
	Longitude        float64 // decimal degrees, negative = west
	WithGPS          bool
}

// Canon returns the payload of a Canon photo taken 2024-01-01 10:00:00.
func Canon() []byte {
	return Build(Fields{
		Make:             "Canon",
		Model:            "Canon EOS R5",
		DateTimeOriginal: "2024:01:01 10:00:00",
		Width:            8192,
		Height:           5464,
	})
}

// TIFF field types.
const (
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func ascii(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func long(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return entry{tag: tag, typ: typeLong, count: 1, data: b}
}

// degrees encodes decimal degrees as the three EXIF rationals d/m/s,
// putting the whole value into the first one with micro-degree precision.
func degrees(tag uint16, v float64) entry {
	if v < 0 {
		v = -v
	}
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b[0:], uint32(v*1e6+0.5))
	binary.LittleEndian.PutUint32(b[4:], 1e6)
	binary.LittleEndian.PutUint32(b[8:], 0)
	binary.LittleEndian.PutUint32(b[12:], 1)
	binary.LittleEndian.PutUint32(b[16:], 0)
	binary.LittleEndian.PutUint32(b[20:], 1)
	return entry{tag: tag, typ: typeRational, count: 3, data: b}
}

// Build lays out IFD0, the Exif sub-IFD and (optionally) the GPS sub-IFD.
func Build(f Fields) []byte {
	var ifd0, exifIFD, gpsIFD []entry

	if f.Make != "" {
		ifd0 = append(ifd0, ascii(0x010F, f.Make))
	}
	if f.Model != "" {
		ifd0 = append(ifd0, ascii(0x0110, f.Model))
	}
	if f.DateTimeOriginal != "" {
		exifIFD = append(exifIFD, ascii(0x9003, f.DateTimeOriginal))
	}
	if f.Width > 0 && f.Height > 0 {
		exifIFD = append(exifIFD, long(0xA002, f.Width), long(0xA003, f.Height))
	}
	if f.WithGPS {
		latRef, longRef := "N", "E"
		if f.Latitude < 0 {
			latRef = "S"
		}
		if f.Longitude < 0 {
			longRef = "W"
		}
		gpsIFD = append(gpsIFD,
			ascii(0x0001, latRef),
			degrees(0x0002, f.Latitude),
			ascii(0x0003, longRef),
			degrees(0x0004, f.Longitude),
		)
	}

	// Pointer entries have fixed size, so placeholder offsets give the
	// final IFD0 length before the real offsets are known.
	withPointers := func(exifOff, gpsOff uint32) []entry {
		out := append([]entry(nil), ifd0...)
		if len(exifIFD) > 0 {
			out = append(out, long(0x8769, exifOff))
		}
		if len(gpsIFD) > 0 {
			out = append(out, long(0x8825, gpsOff))
		}
		return out
	}

	const headerLen = 8
	ifd0Len := uint32(len(encodeIFD(withPointers(0, 0), 0)))
	exifOff := headerLen + ifd0Len
	exifLen := uint32(len(encodeIFD(exifIFD, exifOff)))
	gpsOff := exifOff + exifLen

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(headerLen))
	buf.Write(encodeIFD(withPointers(exifOff, gpsOff), headerLen))
	if len(exifIFD) > 0 {
		buf.Write(encodeIFD(exifIFD, exifOff))
	}
	if len(gpsIFD) > 0 {
		buf.Write(encodeIFD(gpsIFD, gpsOff))
	}
	return buf.Bytes()
}

// encodeIFD serializes entries (sorted by tag, as TIFF requires) followed by
// a zero next-IFD offset and the out-of-line value area. start is the
// absolute offset of this IFD within the TIFF payload.
func encodeIFD(entries []entry, start uint32) []byte {
	if len(entries) == 0 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	dirLen := uint32(2 + 12*len(entries) + 4)
	var dir, data bytes.Buffer

	binary.Write(&dir, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&dir, binary.LittleEndian, e.tag)
		binary.Write(&dir, binary.LittleEndian, e.typ)
		binary.Write(&dir, binary.LittleEndian, e.count)
		if len(e.data) <= 4 {
			inline := make([]byte, 4)
			copy(inline, e.data)
			dir.Write(inline)
			continue
		}
		binary.Write(&dir, binary.LittleEndian, start+dirLen+uint32(data.Len()))
		data.Write(e.data)
		if data.Len()%2 == 1 {
			data.WriteByte(0) // values start on word boundaries
		}
	}
	binary.Write(&dir, binary.LittleEndian, uint32(0))

	return append(dir.Bytes(), data.Bytes()...)
}
