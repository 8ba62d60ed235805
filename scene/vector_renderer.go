package scene

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to premultiplied color.RGBA, which the
// canvas library expects.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{}
	}
	if c.A == 255 {
		return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
	}
	alpha := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha) / 255),
		G: uint8((uint32(c.G) * alpha) / 255),
		B: uint8((uint32(c.B) * alpha) / 255),
		A: c.A,
	}
}

// canvasRenderer is the subset of canvas renderers used here; both the svg
// and rasterizer backends implement it.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
	RenderImage(img image.Image, m canvas.Matrix)
}

// MatchVectorRenderer is the vector sink: the composite plus one stroked
// line and endpoint circle per match, written as SVG or rasterized PNG.
type MatchVectorRenderer struct {
	OutputPath  string
	Format      string            // "svg" or "png"
	StrokeWidth float64           // line width in canvas units
	Resolution  canvas.Resolution // PNG output resolution
}

// NewMatchVectorRenderer creates a vector sink writing to outputPath in the
// given format.
func NewMatchVectorRenderer(outputPath, format string) *MatchVectorRenderer {
	return &MatchVectorRenderer{
		OutputPath:  outputPath,
		Format:      format,
		StrokeWidth: 1.5,
		Resolution:  canvas.DPI(96),
	}
}

// DrawMatches implements VisualizationSink.
func (r *MatchVectorRenderer) DrawMatches(composite *image.NRGBA, lines []MatchLine) error {
	f, err := os.Create(r.OutputPath)
	if err != nil {
		return fmt.Errorf("creating match overlay: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch r.Format {
	case "png":
		if err := r.renderToPNG(f, composite, lines); err != nil {
			return fmt.Errorf("rendering match overlay PNG: %w", err)
		}
	default:
		if err := r.renderToSVG(f, composite, lines); err != nil {
			return fmt.Errorf("rendering match overlay SVG: %w", err)
		}
	}
	return nil
}

func (r *MatchVectorRenderer) renderToSVG(w io.Writer, composite *image.NRGBA, lines []MatchLine) error {
	width := float64(composite.Bounds().Dx())
	height := float64(composite.Bounds().Dy())

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, composite, lines, height)
	return svgRenderer.Close()
}

func (r *MatchVectorRenderer) renderToPNG(w io.Writer, composite *image.NRGBA, lines []MatchLine) error {
	width := float64(composite.Bounds().Dx())
	height := float64(composite.Bounds().Dy())

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, composite, lines, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws the composite and the match geometry. Canvas has a
// y-up coordinate system while image pixels are y-down, so line endpoints
// are flipped against the canvas height.
func (r *MatchVectorRenderer) renderToCanvas(renderer canvasRenderer, composite *image.NRGBA, lines []MatchLine, height float64) {
	renderer.RenderImage(composite, canvas.Identity)

	for _, line := range lines {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: canvas.Transparent}
		style.Stroke = canvas.Paint{Color: nrgbaToRGBA(line.Color)}
		style.StrokeWidth = r.StrokeWidth

		path := &canvas.Path{}
		path.MoveTo(line.A[0], height-line.A[1])
		path.LineTo(line.B[0], height-line.B[1])
		renderer.RenderPath(path, style, canvas.Identity)

		dotStyle := canvas.DefaultStyle
		dotStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(line.Color)}
		dotStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

		for _, p := range []struct{ x, y float64 }{
			{line.A[0], height - line.A[1]},
			{line.B[0], height - line.B[1]},
		} {
			dot := canvas.Circle(2.5)
			dot = dot.Translate(p.x, p.y)
			renderer.RenderPath(dot, dotStyle, canvas.Identity)
		}
	}
}
