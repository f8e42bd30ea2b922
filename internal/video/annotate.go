package video

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Box is a detection bounding box in pixel coordinates
type Box struct {
	X1, Y1, X2, Y2 int
}

// Annotation is a labelled box drawn onto a frame
type Annotation struct {
	Box        Box
	Label      string
	Confidence float64
}

var classColors = map[string]color.RGBA{
	"pistol": {R: 220, G: 40, B: 40, A: 255},
	"rifle":  {R: 220, G: 40, B: 40, A: 255},
	"knife":  {R: 60, G: 90, B: 220, A: 255},
}

var defaultBoxColor = color.RGBA{R: 230, G: 150, B: 30, A: 255}

func boxColor(label string) color.RGBA {
	if c, ok := classColors[label]; ok {
		return c
	}
	return defaultBoxColor
}

// Annotate draws the given annotations onto a copy of the frame and
// returns the re-encoded result. The input frame is left untouched.
func Annotate(f *Frame, annotations []Annotation, quality int) (*Frame, error) {
	img, err := f.Decode()
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)

	for _, a := range annotations {
		col := boxColor(a.Label)
		drawRectangle(canvas, a.Box, col, 3)

		text := a.Label
		if a.Confidence > 0 {
			text = fmt.Sprintf("%s %.2f", a.Label, a.Confidence)
		}
		drawLabel(canvas, a.Box.X1, a.Box.Y1-6, text, col)
	}

	data, err := EncodeJPEG(canvas, quality)
	if err != nil {
		return nil, err
	}

	out := &Frame{
		Data:      data,
		Timestamp: f.Timestamp,
		Sequence:  f.Sequence,
		Width:     canvas.Bounds().Dx(),
		Height:    canvas.Bounds().Dy(),
	}
	return out, nil
}

// drawRectangle draws a box outline with the given border thickness
func drawRectangle(img *image.RGBA, b Box, col color.RGBA, thickness int) {
	bounds := img.Bounds()
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}

	x1 := clamp(b.X1, bounds.Min.X, bounds.Max.X-1)
	y1 := clamp(b.Y1, bounds.Min.Y, bounds.Max.Y-1)
	x2 := clamp(b.X2, bounds.Min.X, bounds.Max.X-1)
	y2 := clamp(b.Y2, bounds.Min.Y, bounds.Max.Y-1)

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			if y1+t <= y2 {
				img.SetRGBA(x, y1+t, col)
			}
			if y2-t >= y1 {
				img.SetRGBA(x, y2-t, col)
			}
		}
		for y := y1; y <= y2; y++ {
			if x1+t <= x2 {
				img.SetRGBA(x1+t, y, col)
			}
			if x2-t >= x1 {
				img.SetRGBA(x2-t, y, col)
			}
		}
	}
}

// drawLabel renders text above a box using the built-in 7x13 face
func drawLabel(img *image.RGBA, x, y int, text string, col color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	if y-height < img.Bounds().Min.Y {
		y = img.Bounds().Min.Y + height
	}
	if x < img.Bounds().Min.X {
		x = img.Bounds().Min.X
	}

	// Solid background so the text stays readable on busy frames
	bg := image.Rect(x-2, y-height, x+width+2, y+4)
	draw.Draw(img, bg.Intersect(img.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
