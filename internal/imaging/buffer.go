package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/webp"
)

var ErrMalformedImage = errors.New("malformed image data")

// DecodeBase64Image decodes a base64-encoded raster. The input may carry a
// data:image/<fmt>;base64, prefix, which is stripped before decoding. The
// name identifies the input in error messages so callers can tell which of
// several buffers is broken.
func DecodeBase64Image(name, encoded string) (image.Image, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%s: %w: empty input", name, ErrMalformedImage)
	}

	if strings.HasPrefix(encoded, "data:") {
		idx := strings.Index(encoded, "base64,")
		if idx < 0 {
			return nil, fmt.Errorf("%s: %w: data URI without base64 payload", name, ErrMalformedImage)
		}
		encoded = encoded[idx+len("base64,"):]
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid base64: %v", name, ErrMalformedImage, err)
	}

	if err := SniffImageBytes(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, ErrMalformedImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%s: %w: zero dimensions", name, ErrMalformedImage)
	}

	return img, nil
}

// SniffImageBytes checks the leading bytes of a buffer against known raster
// signatures. Fetched buffers that are actually HTML error pages are the
// common failure here, so markup gets a dedicated message.
func SniffImageBytes(raw []byte) error {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty buffer", ErrMalformedImage)
	}
	if trimmed[0] == '<' {
		return fmt.Errorf("%w: buffer contains markup, not image data", ErrMalformedImage)
	}

	switch {
	case bytes.HasPrefix(raw, []byte("\x89PNG\r\n\x1a\n")):
		return nil
	case bytes.HasPrefix(raw, []byte("\xff\xd8\xff")):
		return nil
	case bytes.HasPrefix(raw, []byte("GIF87a")), bytes.HasPrefix(raw, []byte("GIF89a")):
		return nil
	case len(raw) >= 12 && bytes.Equal(raw[0:4], []byte("RIFF")) && bytes.Equal(raw[8:12], []byte("WEBP")):
		return nil
	default:
		return fmt.Errorf("%w: unrecognized image signature", ErrMalformedImage)
	}
}

// EncodeBase64PNG renders the image as a lossless PNG and base64-encodes it.
func EncodeBase64PNG(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
