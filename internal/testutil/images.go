// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// Gradient returns a deterministic image in which every pixel's color
// encodes its coordinates, so crops can be checked pixel by pixel.
func Gradient(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, PixelAt(x, y))
		}
	}
	return img
}

// PixelAt is the color Gradient places at (x, y).
func PixelAt(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255}
}

// EncodePNG encodes img as PNG.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

// GradientPNG is Gradient encoded as PNG.
func GradientPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	return EncodePNG(t, Gradient(width, height))
}
