// Package exif pulls capture metadata out of uploaded image bytes.
//
// Extract is a pure function: bytes in, metadata out, no I/O. The photo
// coordinator calls it BEFORE writing anything, so a file we cannot read
// never reaches either store.
//
// WHAT WE READ:
//   - DateTimeOriginal (falls back to DateTime)  → Photo.DateTaken
//   - Make / Model                               → ImportantMetadata
//   - GPS latitude / longitude                   → ImportantMetadata.Location
//   - PixelXDimension / PixelYDimension, or the image header when the EXIF
//     block has no dimensions                    → ImportantMetadata.Dimensions
//   - the whole EXIF block as JSON               → Photo.FullMetadata
package exif

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	// Registered decoders for image.DecodeConfig. Without these blank
	// imports DecodeConfig reports "unknown format" for everything.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/sakif/photovault/internal/model"
)

// ErrUnreadable means the bytes carry no EXIF block AND are not an image
// format we can decode a header from.
var ErrUnreadable = errors.New("exif: not a readable image")

// exifTimeLayout is the fixed EXIF timestamp format. It has no zone.
const exifTimeLayout = "2006:01:02 15:04:05"

// Extracted is everything Extract found. Absent values stay nil.
type Extracted struct {
	DateTaken  *time.Time
	Make       *string
	Model      *string
	Location   *model.Location
	Dimensions *model.Dimensions
	Raw        json.RawMessage
}

// Size is the pixel count (width*height), or nil without dimensions.
func (e *Extracted) Size() *int64 {
	if e.Dimensions == nil {
		return nil
	}
	n := int64(e.Dimensions.Width) * int64(e.Dimensions.Height)
	return &n
}

// Apply copies the extracted values onto a photo record.
func (e *Extracted) Apply(p *model.Photo) {
	p.DateTaken = e.DateTaken
	p.Size = e.Size()
	p.ImportantMetadata = model.ImportantMetadata{
		Make:       e.Make,
		Model:      e.Model,
		Location:   e.Location,
		Dimensions: e.Dimensions,
	}
	p.FullMetadata = e.Raw
}

// Extract reads metadata from data.
//
// An image with no EXIF at all is NOT an error: phone screenshots and
// exported PNGs routinely have none. We only fail when there is neither an
// EXIF block nor a decodable image header.
func Extract(data []byte) (*Extracted, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnreadable)
	}

	out := &Extracted{}

	x, err := goexif.Decode(bytes.NewReader(data))
	// goexif returns a usable *Exif alongside non-critical errors (one
	// malformed tag, a truncated maker note). Only a critical error or a
	// nil result means there is no EXIF to read.
	hasExif := x != nil && (err == nil || !goexif.IsCriticalError(err))
	if hasExif {
		readExif(x, out)
	}

	if out.Dimensions == nil {
		cfg, _, cfgErr := image.DecodeConfig(bytes.NewReader(data))
		switch {
		case cfgErr == nil:
			out.Dimensions = &model.Dimensions{Width: cfg.Width, Height: cfg.Height}
		case !hasExif:
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, cfgErr)
		}
	}

	return out, nil
}

func readExif(x *goexif.Exif, out *Extracted) {
	out.DateTaken = captureTime(x)
	out.Make = stringTag(x, goexif.Make)
	out.Model = stringTag(x, goexif.Model)

	if lat, long, err := x.LatLong(); err == nil {
		out.Location = &model.Location{Latitude: lat, Longitude: long}
	}

	w, wErr := intTag(x, goexif.PixelXDimension)
	h, hErr := intTag(x, goexif.PixelYDimension)
	if wErr == nil && hErr == nil && w > 0 && h > 0 {
		out.Dimensions = &model.Dimensions{Width: w, Height: h}
	}

	if raw, err := x.MarshalJSON(); err == nil {
		out.Raw = raw
	}
}

// captureTime parses the EXIF timestamp as UTC.
//
// EXIF timestamps carry no zone. goexif's own DateTime() interprets them in
// time.Local, which would make the stored value depend on the server's TZ
// setting. Parsing the raw tag with time.Parse pins it to UTC.
func captureTime(x *goexif.Exif) *time.Time {
	for _, name := range []goexif.FieldName{goexif.DateTimeOriginal, goexif.DateTime} {
		raw := stringTag(x, name)
		if raw == nil {
			continue
		}
		t, err := time.Parse(exifTimeLayout, *raw)
		if err != nil {
			continue
		}
		return &t
	}
	return nil
}

func stringTag(x *goexif.Exif, name goexif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.StringVal {
		return nil
	}
	s, err := tag.StringVal()
	if err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return nil
	}
	return &s
}

func intTag(x *goexif.Exif, name goexif.FieldName) (int, error) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, err
	}
	return tag.Int(0)
}
