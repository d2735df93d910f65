package omr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/disintegration/imaging"
)

var (
	overlayFilled = color.NRGBA{R: 46, G: 160, B: 67, A: 200}
	overlayBlank  = color.NRGBA{R: 218, G: 54, B: 51, A: 200}
)

// BuildOverlay renders the extracted marks on top of the stored sheet image
// and returns the composite as PNG bytes. Filled answers draw green ticks
// down the margin, blanks draw red ones, so a checker can eyeball what the
// extractor saw against the physical sheet.
func BuildOverlay(imagePath string, answers []string) ([]byte, error) {
	src, err := imaging.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	canvas := imaging.Clone(src)
	bounds := canvas.Bounds()

	markSize := bounds.Dy() / 60
	if markSize < 4 {
		markSize = 4
	}
	step := 0
	if len(answers) > 0 {
		step = bounds.Dy() / (len(answers) + 1)
	}

	for i, answer := range answers {
		tint := overlayFilled
		if answer == "" {
			tint = overlayBlank
		}
		y := (i + 1) * step
		mark := image.Rect(markSize, y, markSize*2, y+markSize)
		draw.Draw(canvas, mark.Intersect(bounds), image.NewUniform(tint), image.Point{}, draw.Over)
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, canvas); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}
