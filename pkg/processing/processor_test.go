package processing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/menta2k/certificate-composer/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func encode(t *testing.T, img image.Image, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	if format == "png" {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	p := NewProcessor()
	src := createTestImage(40, 30)

	for _, format := range []string{"png", "jpeg"} {
		img, got, err := p.Decode(encode(t, src, format))
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", format, err)
		}
		if got != format {
			t.Errorf("expected format %s, got %s", format, got)
		}
		if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
			t.Errorf("unexpected bounds %v", img.Bounds())
		}
	}

	if _, _, err := p.Decode([]byte("not an image")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
	if _, _, err := p.Decode(nil); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat for empty data, got %v", err)
	}
}

func TestExtract(t *testing.T) {
	p := NewProcessor()
	src := createTestImage(100, 80)

	out, err := p.Extract(src, image.Rect(10, 20, 60, 50))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Bounds() != image.Rect(0, 0, 50, 30) {
		t.Errorf("expected 50x30 at origin, got %v", out.Bounds())
	}
	if got, want := out.NRGBAAt(0, 0), src.NRGBAAt(10, 20); got != want {
		t.Errorf("top-left pixel %v, want %v", got, want)
	}

	// Sub-images keep their offset origin
	sub := src.SubImage(image.Rect(50, 40, 100, 80))
	out, err = p.Extract(sub, image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatalf("Extract on sub-image failed: %v", err)
	}
	if got, want := out.NRGBAAt(0, 0), src.NRGBAAt(50, 40); got != want {
		t.Errorf("sub-image pixel %v, want %v", got, want)
	}

	if _, err := p.Extract(src, image.Rect(200, 200, 300, 300)); err == nil {
		t.Error("expected error for rectangle outside the image")
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	p := NewProcessor()
	data, err := p.EncodePNG(createTestImage(8, 8))
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if _, format, err := p.Decode(data); err != nil || format != "png" {
		t.Errorf("expected png, got %s (%v)", format, err)
	}
}

func TestFetch(t *testing.T) {
	data := encode(t, createTestImage(4, 4), "png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Write(data)
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("hello"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessorWithClient(srv.Client())
	body, header, err := p.Fetch(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(body, data) {
		t.Error("body mismatch")
	}
	if header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected response headers to be returned")
	}

	if _, _, err := p.Fetch(context.Background(), srv.URL+"/text"); err == nil {
		t.Error("expected error for non-image content type")
	}
	if _, _, err := p.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
	if _, _, err := p.Fetch(context.Background(), "ftp://example.com/a.png"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	src := createTestImage(16, 12)

	for _, format := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "out."+format)
		if err := p.SaveImage(src, path, format, 90, false); err != nil {
			t.Fatalf("SaveImage(%s) failed: %v", format, err)
		}
		img, err := p.LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s) failed: %v", format, err)
		}
		if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 12 {
			t.Errorf("%s: unexpected bounds %v", format, img.Bounds())
		}
	}
}

func TestBoxRectConversion(t *testing.T) {
	r := BoxToRect(types.Box{X: 0.25, Y: 0.5, W: 0.5, H: 0.25}, 400, 200)
	if r != image.Rect(100, 100, 300, 150) {
		t.Errorf("unexpected rect %v", r)
	}
	b := RectToBox(r, 400, 200)
	if b != (types.Box{X: 0.25, Y: 0.5, W: 0.5, H: 0.25}) {
		t.Errorf("unexpected box %+v", b)
	}

	// Out-of-range boxes are clamped to the image
	if r := BoxToRect(types.Box{X: -1, Y: -1, W: 3, H: 3}, 10, 10); r != image.Rect(0, 0, 10, 10) {
		t.Errorf("expected clamp to full image, got %v", r)
	}
}
