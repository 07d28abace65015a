// Package compositor draws the certificate canvas.
//
// Every render starts from a cleared canvas and paints in a fixed order: background at
// the origin, the fitted photo at its position, then the caption block. While cropping,
// RenderCropPreview paints the original photo fitted into the crop-display box instead,
// with the current selection highlighted.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/certificate-composer/pkg/types"
)

// Style controls caption and crop preview appearance.
type Style struct {
	TextColor  color.Color
	LineHeight float64
	// Anchor is the fraction of canvas height the caption block is centred on.
	Anchor float64

	DimColor    color.Color
	BorderColor color.Color
	BorderWidth int
	DashLength  int
}

// DefaultStyle returns the stock certificate style.
func DefaultStyle() Style {
	return Style{
		TextColor:   color.NRGBA{0x2c, 0x3e, 0x50, 0xff},
		LineHeight:  70,
		Anchor:      0.75,
		DimColor:    color.NRGBA{0, 0, 0, 128},
		BorderColor: color.White,
		BorderWidth: 3,
		DashLength:  8,
	}
}

// Scene is everything the main render reads.
type Scene struct {
	Background image.Image
	// Photo is the slot-sized rendered photo, drawn unscaled at Position.
	Photo    image.Image
	Position types.Point
	Lines    []string
}

// CropScene is everything the crop preview reads.
type CropScene struct {
	Background image.Image
	Original   image.Image
	Display    types.Rect
	Selection  types.Rect
}

// Compositor owns the canvas bitmap.
type Compositor struct {
	canvas *image.NRGBA
	face   font.Face
	style  Style

	// scaled original for the crop preview, reused while the display box is unchanged
	previewSrc  image.Image
	previewRect image.Rectangle
	preview     *image.NRGBA
}

// New creates a compositor with a width x height canvas.
func New(width, height int, face font.Face, style Style) *Compositor {
	return &Compositor{
		canvas: image.NewNRGBA(image.Rect(0, 0, width, height)),
		face:   face,
		style:  style,
	}
}

// Canvas returns the canvas bitmap. It is overwritten by the next render.
func (c *Compositor) Canvas() *image.NRGBA { return c.canvas }

// Size returns the canvas size.
func (c *Compositor) Size() (int, int) {
	b := c.canvas.Bounds()
	return b.Dx(), b.Dy()
}

// Resize replaces the canvas with a cleared one of the given size.
func (c *Compositor) Resize(width, height int) {
	if w, h := c.Size(); w == width && h == height {
		return
	}
	c.canvas = image.NewNRGBA(image.Rect(0, 0, width, height))
}

// SetFace changes the caption face.
func (c *Compositor) SetFace(face font.Face) { c.face = face }

// Face returns the caption face.
func (c *Compositor) Face() font.Face { return c.face }

// Render paints the scene.
func (c *Compositor) Render(s Scene) {
	c.clear()
	if s.Background != nil {
		b := s.Background.Bounds()
		draw.Draw(c.canvas, image.Rectangle{Max: b.Size()}, s.Background, b.Min, draw.Over)
	}
	if s.Photo != nil {
		b := s.Photo.Bounds()
		at := image.Pt(int(math.Round(s.Position.X)), int(math.Round(s.Position.Y)))
		draw.Draw(c.canvas, image.Rectangle{Min: at, Max: at.Add(b.Size())}, s.Photo, b.Min, draw.Over)
	}
	if len(s.Lines) > 0 && c.face != nil {
		w, h := c.Size()
		layout := LayoutCaption(s.Lines, c.face, w, h, c.style.LineHeight, c.style.Anchor)
		c.drawCaption(layout)
	}
}

// RenderCropPreview paints the crop view: background, the original fitted into the
// display box, and when the selection has area, a dimmed canvas with the selection
// revealed and outlined by a dashed border.
func (c *Compositor) RenderCropPreview(s CropScene) {
	c.clear()
	if s.Background != nil {
		b := s.Background.Bounds()
		draw.Draw(c.canvas, image.Rectangle{Max: b.Size()}, s.Background, b.Min, draw.Over)
	}
	if s.Original == nil {
		return
	}
	dst := s.Display.Image()
	preview := c.scaledPreview(s.Original, dst)
	if preview == nil {
		return
	}
	draw.Draw(c.canvas, dst, preview, image.Point{}, draw.Over)

	if s.Selection.Empty() {
		return
	}
	sel := s.Selection.Image().Intersect(c.canvas.Bounds())
	c.dimOutside(sel)

	// The selection shows only the photo; anything else under it is cleared.
	draw.Draw(c.canvas, sel, image.Transparent, image.Point{}, draw.Src)
	if in := sel.Intersect(dst); !in.Empty() {
		draw.Draw(c.canvas, in, preview, in.Min.Sub(dst.Min), draw.Over)
	}
	c.dashedRect(s.Selection)
}

func (c *Compositor) clear() {
	draw.Draw(c.canvas, c.canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

func (c *Compositor) scaledPreview(src image.Image, dst image.Rectangle) *image.NRGBA {
	if dst.Empty() {
		return nil
	}
	if c.preview != nil && c.previewSrc == src && c.previewRect.Size() == dst.Size() {
		return c.preview
	}
	scaled := image.NewNRGBA(image.Rectangle{Max: dst.Size()})
	if src.Bounds().Size() == dst.Size() {
		draw.Draw(scaled, scaled.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Over, nil)
	}
	c.previewSrc, c.previewRect, c.preview = src, dst, scaled
	return scaled
}

func (c *Compositor) dimOutside(sel image.Rectangle) {
	b := c.canvas.Bounds()
	dim := image.NewUniform(c.style.DimColor)
	for _, r := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, sel.Min.Y),
		image.Rect(b.Min.X, sel.Max.Y, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, sel.Min.Y, sel.Min.X, sel.Max.Y),
		image.Rect(sel.Max.X, sel.Min.Y, b.Max.X, sel.Max.Y),
	} {
		if r = r.Intersect(b); !r.Empty() {
			draw.Draw(c.canvas, r, dim, image.Point{}, draw.Over)
		}
	}
}

// dashedRect strokes r clockwise from its top-left corner, alternating DashLength
// pixels on and off, with the stroke centred on the path.
func (c *Compositor) dashedRect(r types.Rect) {
	x0, y0 := int(math.Round(r.X)), int(math.Round(r.Y))
	x1, y1 := int(math.Round(r.Right())), int(math.Round(r.Bottom()))
	dash := c.style.DashLength
	if dash <= 0 {
		dash = 1
	}
	width := c.style.BorderWidth
	if width <= 0 {
		width = 1
	}
	lo := -(width / 2)
	hi := lo + width

	d := 0
	plot := func(x, y int) {
		if (d/dash)%2 == 0 {
			for dy := lo; dy < hi; dy++ {
				for dx := lo; dx < hi; dx++ {
					if image.Pt(x+dx, y+dy).In(c.canvas.Bounds()) {
						c.canvas.Set(x+dx, y+dy, c.style.BorderColor)
					}
				}
			}
		}
		d++
	}
	for x := x0; x < x1; x++ {
		plot(x, y0)
	}
	for y := y0; y < y1; y++ {
		plot(x1, y)
	}
	for x := x1; x > x0; x-- {
		plot(x, y1)
	}
	for y := y1; y > y0; y-- {
		plot(x0, y)
	}
}

// PlacedLine is a caption line with its left edge and baseline in canvas space.
type PlacedLine struct {
	Text string
	X    float64
	Y    float64
}

// CaptionLayout is the computed caption block.
type CaptionLayout struct {
	Lines []PlacedLine
	Width float64
}

// LayoutCaption places lines as a block centred horizontally on the canvas and
// vertically on anchor*height. Lines are left-aligned to the block's left edge,
// the block is as wide as its widest line and successive baselines are lineHeight apart.
func LayoutCaption(lines []string, face font.Face, canvasWidth, canvasHeight int, lineHeight, anchor float64) CaptionLayout {
	if len(lines) == 0 {
		return CaptionLayout{}
	}
	var widest float64
	for _, line := range lines {
		widest = math.Max(widest, fixedToFloat(font.MeasureString(face, line)))
	}
	left := float64(canvasWidth)/2 - widest/2
	top := float64(canvasHeight)*anchor - float64(len(lines)-1)*lineHeight/2

	out := CaptionLayout{Width: widest, Lines: make([]PlacedLine, len(lines))}
	for i, line := range lines {
		out.Lines[i] = PlacedLine{Text: line, X: left, Y: top + float64(i)*lineHeight}
	}
	return out
}

func (c *Compositor) drawCaption(layout CaptionLayout) {
	d := &font.Drawer{
		Dst:  c.canvas,
		Src:  image.NewUniform(c.style.TextColor),
		Face: c.face,
	}
	for _, line := range layout.Lines {
		d.Dot = fixed.Point26_6{X: floatToFixed(line.X), Y: floatToFixed(line.Y)}
		d.DrawString(line.Text)
	}
}

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }

func floatToFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

// ParseHexColor parses "#rgb" or "#rrggbb".
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
