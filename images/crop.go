package images

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Decode decodes blob bytes fetched back from the CDN for icon and banner
// crops.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Crop cuts the rectangle out of the source image. Coordinates are
// top/left-anchored source pixels.
func Crop(img image.Image, left, top, width, height int) image.Image {
	return imaging.Crop(img, image.Rect(left, top, left+width, top+height))
}

// ResizeLongSide scales so the longer dimension fits size; images already
// within the budget pass through.
func ResizeLongSide(img image.Image, size int) image.Image {
	return resizeLongSide(img, size)
}

// FitWithin scales down to fit inside width×height, preserving aspect
// ratio, only when the image exceeds the box.
func FitWithin(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= width && bounds.Dy() <= height {
		return img
	}
	return imaging.Fit(img, width, height, imaging.CatmullRom)
}

// EncodeWebP encodes at the given quality.
func EncodeWebP(img image.Image, quality int) ([]byte, error) {
	return encodeWebP(img, quality)
}

// EncodeJPEG encodes at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	return encodeJPEG(img, quality)
}
