// segmenter.go - Cutting long receipt photos into readable strips

package segmenter

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log"

	"github.com/disintegration/imaging"
	"github.com/domusplus/receipt-engine/internal/common"
)

const (
	defaultOverlapPx = 250
	jpegQuality      = 90

	// Footer crop: the totals block lives in the bottom of the receipt.
	footerFraction  = 0.30
	footerMinHeight = 600
)

// Strip is one encoded vertical segment of a receipt photo.
type Strip struct {
	Data     []byte
	MIMEType string
	Index    int
	Width    int
	Height   int
}

// Segmenter cuts tall receipt photos into overlapping vertical strips so a
// vision model sees each printed line at a readable scale.
type Segmenter struct {
	OverlapPx       int
	MaxWidthFast    int
	MaxWidthPrecise int
}

func New(overlapPx, maxWidthFast, maxWidthPrecise int) *Segmenter {
	if overlapPx <= 0 {
		overlapPx = defaultOverlapPx
	}
	return &Segmenter{
		OverlapPx:       overlapPx,
		MaxWidthFast:    maxWidthFast,
		MaxWidthPrecise: maxWidthPrecise,
	}
}

// segmentCount maps image height to strip count. Precise mode cuts finer
// because its model reads each strip at higher detail and latency budget.
func segmentCount(height int, mode common.Mode) int {
	if mode == common.ModePrecise {
		switch {
		case height > 3200:
			return 5
		case height > 2200:
			return 4
		case height > 1400:
			return 3
		case height > 900:
			return 2
		}
		return 1
	}
	switch {
	case height > 4000:
		return 4
	case height > 2500:
		return 3
	case height > 1600:
		return 2
	}
	return 1
}

// Segment decodes a photo and cuts it into overlapping strips. Any failure,
// decoding included, degrades to a single strip of the untouched upload; a
// bad cut must never lose receipt content.
func (s *Segmenter) Segment(data []byte, mode common.Mode) ([]Strip, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		log.Printf("⚠️ Segmenter: decode failed (%v), passing image through whole", err)
		mime, mErr := DetectMIME(data)
		if mErr != nil {
			mime = "image/jpeg"
		}
		return []Strip{{Data: data, MIMEType: mime, Index: 0}}, nil
	}

	img = s.normalizeWidth(img, mode)
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	n := segmentCount(height, mode)
	if n <= 1 {
		strip, err := encodeStrip(img, 0)
		if err != nil {
			return nil, err
		}
		return []Strip{strip}, nil
	}

	// Each strip covers height/n plus the overlap band on both cut edges.
	base := height / n
	strips := make([]Strip, 0, n)
	for i := 0; i < n; i++ {
		top := i*base - s.OverlapPx
		if top < 0 {
			top = 0
		}
		bottom := (i+1)*base + s.OverlapPx
		if i == n-1 || bottom > height {
			bottom = height
		}

		part := imaging.Crop(img, image.Rect(0, top, width, bottom))
		strip, err := encodeStrip(part, i)
		if err != nil {
			// Degrade to the whole image rather than drop content.
			whole, wErr := encodeStrip(img, 0)
			if wErr != nil {
				return nil, wErr
			}
			return []Strip{whole}, nil
		}
		strips = append(strips, strip)
	}
	return strips, nil
}

// FooterCrop returns the bottom band of the photo where the totals block
// prints. At least footerMinHeight pixels so a short crop of a tall image
// cannot cut the total line in half.
func (s *Segmenter) FooterCrop(data []byte) (Strip, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Strip{}, fmt.Errorf("decode image: %w", err)
	}

	img = s.normalizeWidth(img, common.ModePrecise)
	bounds := img.Bounds()
	height := bounds.Dy()

	cropHeight := int(float64(height) * footerFraction)
	if cropHeight < footerMinHeight {
		cropHeight = footerMinHeight
	}
	if cropHeight > height {
		cropHeight = height
	}

	part := imaging.Crop(img, image.Rect(0, height-cropHeight, bounds.Dx(), height))
	return encodeStrip(part, 0)
}

// normalizeWidth downsizes oversized photos. Receipt text survives width
// reduction well and token cost scales with pixel count.
func (s *Segmenter) normalizeWidth(img image.Image, mode common.Mode) image.Image {
	maxWidth := s.MaxWidthPrecise
	if mode == common.ModeFast {
		maxWidth = s.MaxWidthFast
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	return img
}

func encodeStrip(img image.Image, index int) (Strip, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Strip{}, fmt.Errorf("encode segment %d: %w", index, err)
	}
	bounds := img.Bounds()
	return Strip{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Index:    index,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// DetectMIME sniffs the upload format from magic bytes. Content type headers
// from phone uploads lie often enough to not be worth reading.
func DetectMIME(data []byte) (string, error) {
	switch {
	case len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "image/jpeg", nil
	case len(data) > 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "image/png", nil
	case len(data) > 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp", nil
	case len(data) > 12 && bytes.Equal(data[4:12], []byte("ftypheic")):
		return "image/heic", nil
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif", nil
	default:
		return "", fmt.Errorf("unsupported image format (expected JPEG, PNG, WebP, HEIC or GIF)")
	}
}
