package service

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
)

const (
	thumbnailMaxWidth  = 1280
	thumbnailMaxHeight = 720
	thumbnailQuality   = 80
)

func decodeImage(data []byte, mimeType string) (image.Image, error) {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		return png.Decode(bytes.NewReader(data))
	case "image/webp":
		return webp.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported image format %s", mimeType)
	}
}

// fitWithin 等比缩小到不超过 maxW x maxH，小图原样返回
func fitWithin(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return src
	}

	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(math.Max(1, math.Round(float64(w)*scale)))
	nh := int(math.Max(1, math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// encodeThumbnail 将封面图缩放并转码为 WebP
func encodeThumbnail(data []byte, mimeType string) ([]byte, error) {
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	err = webp.Encode(buf, fitWithin(img, thumbnailMaxWidth, thumbnailMaxHeight), &webp.Options{Quality: thumbnailQuality})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
