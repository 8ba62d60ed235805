package scene

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MatchLine is one correspondence to draw: both endpoints in composite
// coordinates, plus its color.
type MatchLine struct {
	A     orb.Point
	B     orb.Point
	Color color.NRGBA
}

// VisualizationSink consumes the side-by-side composite and the sampled
// match lines. It is write-only: the pipeline does not depend on what the
// sink does with them.
type VisualizationSink interface {
	DrawMatches(composite *image.NRGBA, lines []MatchLine) error
}

// FitToSize scales img to width x height using bilinear interpolation.
// Inference runs at a reduced resolution, so the on-disk image has to be
// brought down to the point-map grid before match pixels line up.
func FitToSize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// SideBySide pads the two images to equal height with black and concatenates
// them horizontally. It returns the composite and the x offset of the second
// image within it.
func SideBySide(a, b image.Image) (*image.NRGBA, int) {
	wa, ha := a.Bounds().Dx(), a.Bounds().Dy()
	wb, hb := b.Bounds().Dx(), b.Bounds().Dy()

	h := ha
	if hb > h {
		h = hb
	}

	composite := image.NewNRGBA(image.Rect(0, 0, wa+wb, h))
	draw.Draw(composite, image.Rect(0, 0, wa, ha), a, a.Bounds().Min, draw.Src)
	draw.Draw(composite, image.Rect(wa, 0, wa+wb, hb), b, b.Bounds().Min, draw.Src)

	return composite, wa
}

// MatchLines converts a sampled correspondence set into drawable lines.
// B-side pixels are shifted by offsetB into composite coordinates, and each
// line gets a color from the ramp so individual matches stay tellable apart.
func MatchLines(set CorrespondenceSet, offsetB int) []MatchLine {
	n := set.Count()
	lines := make([]MatchLine, n)
	for i := 0; i < n; i++ {
		lines[i] = MatchLine{
			A:     set.PixelsA[i],
			B:     orb.Point{set.PixelsB[i][0] + float64(offsetB), set.PixelsB[i][1]},
			Color: MatchColor(i, n),
		}
	}
	return lines
}

// MatchColor returns the i-th of n colors on a blue-to-red ramp
// (blue, cyan, green, yellow, red), mirroring the usual jet colormap.
func MatchColor(i, n int) color.NRGBA {
	if n <= 1 {
		return color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	}
	t := float64(i) / float64(n-1)

	ramp := func(x float64) uint8 {
		if x < 0 {
			x = 0
		}
		if x > 1 {
			x = 1
		}
		return uint8(math.Round(x * 255))
	}

	// Piecewise-linear channels over four segments.
	r := ramp(2.0*t - 1.0)
	g := 1.0 - math.Abs(2.0*t-1.0)
	b := ramp(1.0 - 2.0*t)
	return color.NRGBA{R: r, G: ramp(g * 2.0), B: b, A: 255}
}

// MatchRenderer is the default raster sink: it draws the match lines onto
// the composite, labels it with the match count, and writes a PNG.
type MatchRenderer struct {
	OutputPath string
	LineWidth  int // stroke thickness in pixels; 0 means 1
	Label      bool
}

// NewMatchRenderer creates a raster sink writing to outputPath.
func NewMatchRenderer(outputPath string) *MatchRenderer {
	return &MatchRenderer{
		OutputPath: outputPath,
		LineWidth:  1,
		Label:      true,
	}
}

// DrawMatches implements VisualizationSink.
func (r *MatchRenderer) DrawMatches(composite *image.NRGBA, lines []MatchLine) error {
	for _, line := range lines {
		drawLine(composite, line.A, line.B, line.Color, r.LineWidth)
		drawMarker(composite, line.A, line.Color)
		drawMarker(composite, line.B, line.Color)
	}

	if r.Label {
		label := fmt.Sprintf("%d matches", len(lines))
		drawLabel(composite, label, 8, 16)
	}

	f, err := os.Create(r.OutputPath)
	if err != nil {
		return fmt.Errorf("creating match overlay: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, composite); err != nil {
		return fmt.Errorf("encoding match overlay: %w", err)
	}
	return nil
}

// drawLine rasterizes a line segment with simple DDA stepping, thickened to
// the given width.
func drawLine(img *image.NRGBA, from, to orb.Point, c color.NRGBA, width int) {
	if width < 1 {
		width = 1
	}

	dx := to[0] - from[0]
	dy := to[1] - from[1]
	steps := int(math.Max(math.Abs(dx), math.Abs(dy)))
	if steps == 0 {
		setThick(img, int(from[0]), int(from[1]), c, width)
		return
	}

	xInc := dx / float64(steps)
	yInc := dy / float64(steps)
	x, y := from[0], from[1]
	for i := 0; i <= steps; i++ {
		setThick(img, int(math.Round(x)), int(math.Round(y)), c, width)
		x += xInc
		y += yInc
	}
}

// setThick sets a width x width block centered on (x, y), clipped to bounds.
func setThick(img *image.NRGBA, x, y int, c color.NRGBA, width int) {
	half := width / 2
	b := img.Bounds()
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			px, py := x+dx, y+dy
			if px >= b.Min.X && px < b.Max.X && py >= b.Min.Y && py < b.Max.Y {
				img.SetNRGBA(px, py, c)
			}
		}
	}
}

// drawMarker renders a small plus at p.
func drawMarker(img *image.NRGBA, p orb.Point, c color.NRGBA) {
	x, y := int(p[0]), int(p[1])
	b := img.Bounds()
	for d := -3; d <= 3; d++ {
		if x+d >= b.Min.X && x+d < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
			img.SetNRGBA(x+d, y, c)
		}
		if x >= b.Min.X && x < b.Max.X && y+d >= b.Min.Y && y+d < b.Max.Y {
			img.SetNRGBA(x, y+d, c)
		}
	}
}

// drawLabel renders text at (x, y) using the basic 7x13 face.
func drawLabel(img *image.NRGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
