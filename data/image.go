package data

import (
	"fmt"
	"image"
	_ "image/jpeg" // Essential: Registers JPEG format
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"

	"github.com/b0tShaman/seqnet/ml"
)

// DecodeGray decodes an image of any size, scales it to targetW x targetH and
// returns the grayscale values in [0, 1], row by row.
func DecodeGray(r io.Reader, targetW, targetH int) ([]float64, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)

	out := make([]float64, 0, targetW*targetH)
	bounds := dst.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			// Standard Grayscale formula
			gray := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			out = append(out, gray/255)
		}
	}
	return out, nil
}

// ImageSequence loads an image as a sequence of targetH steps, one pixel row
// of width targetW per step, for row-by-row sequence classifiers.
func ImageSequence(path string, targetW, targetH int) (*ml.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pixels, err := DecodeGray(f, targetW, targetH)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ml.NewNodeFromMatrix(ml.NewMatrixFromSlice(targetH, targetW, pixels), 1), nil
}
