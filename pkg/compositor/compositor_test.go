package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/menta2k/certificate-composer/pkg/types"
)

func createTestImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func testFace(t *testing.T) font.Face {
	t.Helper()
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 64, DPI: 72})
	if err != nil {
		t.Fatal(err)
	}
	return face
}

var (
	red   = color.NRGBA{255, 0, 0, 255}
	green = color.NRGBA{0, 255, 0, 255}
	blue  = color.NRGBA{0, 0, 255, 255}
	white = color.NRGBA{255, 255, 255, 255}
)

func TestRenderDrawOrder(t *testing.T) {
	c := New(100, 100, nil, DefaultStyle())
	c.Render(Scene{
		Background: createTestImage(100, 100, red),
		Photo:      createTestImage(10, 10, green),
		Position:   types.Point{X: 20, Y: 30},
	})

	canvas := c.Canvas()
	if got := canvas.NRGBAAt(5, 5); got != red {
		t.Errorf("background pixel = %v", got)
	}
	if got := canvas.NRGBAAt(25, 35); got != green {
		t.Errorf("photo pixel = %v", got)
	}
	if got := canvas.NRGBAAt(30, 40); got != red {
		t.Errorf("pixel past the photo = %v", got)
	}
}

func TestRenderClearsPreviousFrame(t *testing.T) {
	c := New(50, 50, nil, DefaultStyle())
	c.Render(Scene{Background: createTestImage(50, 50, red)})
	c.Render(Scene{})
	if got := c.Canvas().NRGBAAt(10, 10); got.A != 0 {
		t.Errorf("expected cleared canvas, got %v", got)
	}
}

func TestTransparentPhotoBandsShowBackground(t *testing.T) {
	photo := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	draw.Draw(photo, image.Rect(0, 5, 20, 15), image.NewUniform(green), image.Point{}, draw.Src)

	c := New(40, 40, nil, DefaultStyle())
	c.Render(Scene{Background: createTestImage(40, 40, red), Photo: photo})
	if got := c.Canvas().NRGBAAt(10, 2); got != red {
		t.Errorf("transparent band should show background, got %v", got)
	}
	if got := c.Canvas().NRGBAAt(10, 10); got != green {
		t.Errorf("photo content = %v", got)
	}
}

func TestLayoutCaption(t *testing.T) {
	face := testFace(t)
	const w, h = 2480, 3508

	if l := LayoutCaption(nil, face, w, h, 70, 0.75); len(l.Lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(l.Lines))
	}

	one := LayoutCaption([]string{"De: Ana"}, face, w, h, 70, 0.75)
	if len(one.Lines) != 1 || one.Lines[0].Text != "De: Ana" {
		t.Fatalf("unexpected layout %+v", one)
	}
	if one.Lines[0].Y != h*0.75 {
		t.Errorf("single line baseline = %v, want %v", one.Lines[0].Y, h*0.75)
	}
	if math.Abs(one.Lines[0].X-(w/2-one.Width/2)) > 1e-9 {
		t.Errorf("line not centred: x=%v width=%v", one.Lines[0].X, one.Width)
	}

	two := LayoutCaption([]string{"De: Ana", "Para: Bruno Henrique"}, face, w, h, 70, 0.75)
	if len(two.Lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(two.Lines))
	}
	if two.Lines[0].Text != "De: Ana" || two.Lines[1].Text != "Para: Bruno Henrique" {
		t.Errorf("unexpected order %+v", two.Lines)
	}
	if gap := two.Lines[1].Y - two.Lines[0].Y; gap != 70 {
		t.Errorf("line gap = %v, want 70", gap)
	}
	if mid := (two.Lines[0].Y + two.Lines[1].Y) / 2; mid != h*0.75 {
		t.Errorf("block not centred on anchor: %v", mid)
	}
	if two.Lines[0].X != two.Lines[1].X {
		t.Error("lines must share the block's left edge")
	}
	if two.Width <= one.Width {
		t.Errorf("block width should follow the widest line: %v <= %v", two.Width, one.Width)
	}
}

func TestRenderDrawsCaption(t *testing.T) {
	c := New(800, 400, testFace(t), DefaultStyle())
	c.Render(Scene{Background: createTestImage(800, 400, white), Lines: []string{"De: Ana"}})

	inked := 0
	for y := 240; y < 310; y++ {
		for x := 0; x < 800; x++ {
			if c.Canvas().NRGBAAt(x, y) != white {
				inked++
			}
		}
	}
	if inked == 0 {
		t.Error("expected caption pixels around the anchor line")
	}
}

func TestRenderCropPreview(t *testing.T) {
	c := New(200, 200, nil, DefaultStyle())
	scene := CropScene{
		Background: createTestImage(200, 200, white),
		Original:   createTestImage(100, 100, blue),
		Display:    types.Rect{X: 50, Y: 50, Width: 100, Height: 100},
	}

	// No selection: no dimming
	c.RenderCropPreview(scene)
	if got := c.Canvas().NRGBAAt(10, 10); got != white {
		t.Errorf("background without selection = %v", got)
	}
	if got := c.Canvas().NRGBAAt(100, 100); got != blue {
		t.Errorf("preview pixel = %v", got)
	}

	scene.Selection = types.Rect{X: 60, Y: 60, Width: 20, Height: 20}
	c.RenderCropPreview(scene)
	canvas := c.Canvas()

	if got := canvas.NRGBAAt(10, 10); got.R < 120 || got.R > 135 || got.A != 255 {
		t.Errorf("expected dimmed background, got %v", got)
	}
	if got := canvas.NRGBAAt(120, 120); got.B < 120 || got.B > 135 {
		t.Errorf("expected dimmed photo outside the selection, got %v", got)
	}
	if got := canvas.NRGBAAt(70, 70); got != blue {
		t.Errorf("selection should reveal the photo, got %v", got)
	}
	if got := canvas.NRGBAAt(60, 60); got != white {
		t.Errorf("expected border at the selection corner, got %v", got)
	}
}

func TestCropPreviewSelectionOutsidePhoto(t *testing.T) {
	c := New(200, 200, nil, DefaultStyle())
	c.RenderCropPreview(CropScene{
		Background: createTestImage(200, 200, white),
		Original:   createTestImage(100, 100, blue),
		Display:    types.Rect{X: 50, Y: 50, Width: 100, Height: 100},
		Selection:  types.Rect{X: 40, Y: 40, Width: 30, Height: 30},
	})
	if got := c.Canvas().NRGBAAt(45, 45); got.A != 0 {
		t.Errorf("selection outside the photo should be cleared, got %v", got)
	}
	if got := c.Canvas().NRGBAAt(60, 60); got != blue {
		t.Errorf("selection inside the photo should be revealed, got %v", got)
	}
}

func TestDashedBorder(t *testing.T) {
	c := New(100, 100, nil, DefaultStyle())
	c.RenderCropPreview(CropScene{
		Original:  createTestImage(100, 100, blue),
		Display:   types.Rect{Width: 100, Height: 100},
		Selection: types.Rect{X: 10, Y: 10, Width: 60, Height: 60},
	})
	canvas := c.Canvas()
	// First dash covers x 10..17 on the top edge, the gap 18..25
	if got := canvas.NRGBAAt(12, 10); got != white {
		t.Errorf("expected dash at (12,10), got %v", got)
	}
	if got := canvas.NRGBAAt(22, 10); got == white {
		t.Errorf("expected gap at (22,10), got %v", got)
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#2c3e50")
	if err != nil || c != (color.NRGBA{0x2c, 0x3e, 0x50, 0xff}) {
		t.Errorf("got %v, %v", c, err)
	}
	c, err = ParseHexColor("#fff")
	if err != nil || c != white {
		t.Errorf("got %v, %v", c, err)
	}
	if _, err := ParseHexColor("blue"); err == nil {
		t.Error("expected error for named colour")
	}
}
