package transformers

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Format is an output image encoding
type Format string

const (
	JPG Format = "jpg"
	PNG Format = "png"
)

const jpegQuality = 90

// ParseFormat accepts "jpg", "jpeg" or "png"
func ParseFormat(s string) (Format, error) {
	switch s {
	case "jpg", "jpeg":
		return JPG, nil
	case "png":
		return PNG, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

// detect sniffs the encoding of data by content, returning "" when it is neither jpg nor png
func detect(data []byte) Format {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/jpeg"):
		return JPG
	case mt.Is("image/png"):
		return PNG
	}
	return ""
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image (%s): %w", mimetype.Detect(data).String(), err)
	}
	return img, nil
}

func encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case JPG:
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
	case PNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return buf.Bytes(), nil
}

// flatten draws img over a white background since JPEG has no alpha channel
func flatten(img image.Image) image.Image {
	if _, ok := img.(*image.YCbCr); ok {
		return img
	}
	if _, ok := img.(*image.Gray); ok {
		return img
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}
