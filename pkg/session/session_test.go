package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/menta2k/certificate-composer/pkg/assets"
	"github.com/menta2k/certificate-composer/pkg/crop"
	"github.com/menta2k/certificate-composer/pkg/layout"
	"github.com/menta2k/certificate-composer/pkg/persist"
	"github.com/menta2k/certificate-composer/pkg/typeface"
	"github.com/menta2k/certificate-composer/pkg/types"
)

const bgW, bgH = 248, 350

var (
	bgColor   = color.NRGBA{R: 240, G: 230, B: 200, A: 255}
	testSlot  = types.Rect{X: 32, Y: 43, Width: 183, Height: 193}
	testScene = layout.Layout{Slot: testSlot, PhotoAreaRight: 215}
	identity  = types.Viewport{DisplayWidth: bgW, DisplayHeight: bgH}
)

// createTestImage returns a solid image of the given size
func createTestImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

type fakeAssets struct {
	tainted bool
}

func (f fakeAssets) Load(context.Context, string) (*assets.Background, error) {
	return &assets.Background{Image: createTestImage(bgW, bgH, bgColor), Source: "test", Tainted: f.tainted}, nil
}

type fakeDecoder struct {
	images map[string]image.Image
	gates  map[string]chan struct{}
}

func (d *fakeDecoder) Decode(data []byte) (image.Image, string, error) {
	key := string(data)
	if gate, ok := d.gates[key]; ok {
		<-gate
	}
	img, ok := d.images[key]
	if !ok {
		return nil, "", errors.New("unknown format")
	}
	return img, "png", nil
}

type fakePersister struct {
	mu      sync.Mutex
	records []persist.Record
	err     error
}

func (p *fakePersister) Persist(_ context.Context, rec persist.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return p.err
}

func (p *fakePersister) calls() []persist.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persist.Record(nil), p.records...)
}

type fakeSuggester struct {
	rect image.Rectangle
}

func (f fakeSuggester) Suggest(context.Context, image.Image) (image.Rectangle, error) {
	return f.rect, nil
}

func newTestSession(t *testing.T, opts Options) (*Session, *fakeDecoder) {
	t.Helper()
	dec := &fakeDecoder{
		images: map[string]image.Image{
			"red":  createTestImage(200, 100, color.NRGBA{R: 255, A: 255}),
			"blue": createTestImage(100, 200, color.NRGBA{B: 255, A: 255}),
			"slow": createTestImage(50, 50, color.NRGBA{G: 255, A: 255}),
			// 200x100 with its origin at (100,100)
			"offset": createTestImage(300, 200, color.NRGBA{R: 255, A: 255}).SubImage(image.Rect(100, 100, 300, 200)),
		},
		gates: map[string]chan struct{}{},
	}
	opts.Layout = testScene
	opts.Decoder = dec
	opts.Font = typeface.Resolved(typeface.Default(12))
	if opts.Assets == nil {
		opts.Assets = fakeAssets{}
	}
	s := New(opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s, dec
}

func upload(t *testing.T, s *Session, name string) *Task {
	t.Helper()
	task := s.OnImageUploaded([]byte(name))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("upload %s failed: %v", name, err)
	}
	return task
}

func at(x, y float64) types.PointerEvent {
	return types.PointerEvent{ClientX: x, ClientY: y, Viewport: identity}
}

func TestStartPaintsBackground(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	if w, h := s.CanvasSize(); w != bgW || h != bgH {
		t.Fatalf("expected canvas %dx%d, got %dx%d", bgW, bgH, w, h)
	}
	if got := s.Canvas().NRGBAAt(5, 5); got != bgColor {
		t.Errorf("expected background colour, got %v", got)
	}
	c := s.Controls()
	if c.CropEnabled || !c.ExportEnabled || c.CropButtonsVisible {
		t.Errorf("unexpected controls before upload: %+v", c)
	}
}

func TestUploadCommitsPhoto(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	task := upload(t, s, "red")
	if !task.Committed() {
		t.Fatal("expected upload to be committed")
	}
	if !s.HasPhoto() || s.Original() == nil {
		t.Fatal("expected a photo")
	}
	// The 200x100 photo is letterboxed in the slot, so its centre is red
	cx, cy := int(testSlot.X+testSlot.Width/2), int(testSlot.Y+testSlot.Height/2)
	if got := s.Canvas().NRGBAAt(cx, cy); got.R < 250 || got.B > 5 {
		t.Errorf("expected red at slot centre, got %v", got)
	}
	if !s.Controls().CropEnabled {
		t.Error("crop must be enabled once a photo is present")
	}
}

func TestStaleUploadIsDiscarded(t *testing.T) {
	s, dec := newTestSession(t, Options{})
	gate := make(chan struct{})
	dec.gates["slow"] = gate

	slow := s.OnImageUploaded([]byte("slow"))
	upload(t, s, "blue")
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := slow.Wait(ctx); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if slow.Committed() {
		t.Error("stale upload must not be committed")
	}
	if got := s.Original().Bounds().Dx(); got != 100 {
		t.Errorf("expected the newer photo to win, got width %d", got)
	}
}

func TestDecodeFailureKeepsState(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	upload(t, s, "red")
	before := s.Original()

	task := s.OnImageUploaded([]byte("garbage"))
	<-task.Done()
	if task.Err() == nil || task.Committed() {
		t.Fatalf("expected decode failure, got err=%v committed=%v", task.Err(), task.Committed())
	}
	if s.Original() != before {
		t.Error("decode failure must leave the previous photo in place")
	}
}

func TestLargeUploadAcceptedByDefault(t *testing.T) {
	s := New(Options{Layout: testScene, Assets: fakeAssets{}, Font: typeface.Resolved(typeface.Default(12))})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 42 megapixels, decodable by the stock decoder
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 7000, 6000))); err != nil {
		t.Fatal(err)
	}
	task := s.OnImageUploaded(buf.Bytes())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !task.Committed() || !s.HasPhoto() {
		t.Fatal("expected the photo to be committed")
	}
	if b := s.Original().Bounds(); b.Dx() != 7000 || b.Dy() != 6000 {
		t.Errorf("unexpected original bounds %v", b)
	}
}

func TestCaptionCounters(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	counters := s.OnCaptionChanged("  Ana  ", "abcdefghijklmnopqrstuvwxyz")
	if counters.Donor.Text != "7/25" || counters.Donor.Alert {
		t.Errorf("unexpected donor counter %+v", counters.Donor)
	}
	if counters.Receiver.Text != "26/25" || !counters.Receiver.Alert {
		t.Errorf("unexpected receiver counter %+v", counters.Receiver)
	}
	if s.Counters() != counters {
		t.Error("Counters must match the last change")
	}
}

func TestDragIsClamped(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	upload(t, s, "red")

	s.OnPointerDown(at(100, 100))
	if s.Mode() != Dragging {
		t.Fatalf("expected dragging, got %v", s.Mode())
	}
	s.OnPointerMove(at(1000, 1000))
	if x, y := s.Position(); x != 32 || y != 236 {
		t.Errorf("expected clamped position (32,236), got (%v,%v)", x, y)
	}
	s.OnPointerMove(at(-1000, -1000))
	if x, y := s.Position(); x != 32 || y != 43 {
		t.Errorf("expected clamped position (32,43), got (%v,%v)", x, y)
	}
	s.OnPointerUp(at(0, 0))
	if s.Mode() != Idle {
		t.Errorf("expected idle after up, got %v", s.Mode())
	}
}

func TestDragIgnoredWithoutPhoto(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	s.OnPointerDown(at(100, 100))
	if s.Mode() != Idle {
		t.Errorf("expected idle without a photo, got %v", s.Mode())
	}
}

func TestDragHandle(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	if _, ok := s.DragHandle(identity); ok {
		t.Fatal("no handle without a photo")
	}
	upload(t, s, "red")

	vp := types.Viewport{Left: 10, Top: 20, DisplayWidth: bgW / 2, DisplayHeight: bgH / 2}
	p, ok := s.DragHandle(vp)
	if !ok {
		t.Fatal("expected a handle")
	}
	// Centre (123.5, 139.5) halved, offset by the viewport and the handle inset
	if p.X != 10+61.75-10 || p.Y != 20+69.75-10 {
		t.Errorf("unexpected handle position %v", p)
	}
}

func TestStartCropRequiresPhoto(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	if err := s.StartCrop(); !errors.Is(err, crop.ErrNoImage) {
		t.Fatalf("expected crop.ErrNoImage, got %v", err)
	}
}

func TestZeroAreaConfirmStaysInCrop(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	upload(t, s, "red")
	if err := s.StartCrop(); err != nil {
		t.Fatalf("StartCrop failed: %v", err)
	}
	if !s.Controls().CropButtonsVisible {
		t.Error("crop buttons must be visible while cropping")
	}
	s.OnPointerDown(at(100, 150))
	s.OnPointerUp(at(100, 150))

	if err := s.ConfirmCrop(); !errors.Is(err, crop.ErrEmptySelection) {
		t.Fatalf("expected crop.ErrEmptySelection, got %v", err)
	}
	if s.Mode() != CroppingIdle {
		t.Errorf("expected to stay in crop mode, got %v", s.Mode())
	}
	if _, ok := s.CropRegion(); ok {
		t.Error("a rejected confirm must not set a crop region")
	}
}

func TestConfirmCropMapsSelection(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	upload(t, s, "red")
	if err := s.StartCrop(); err != nil {
		t.Fatalf("StartCrop failed: %v", err)
	}
	d := s.CropDisplay()
	s.OnPointerDown(at(d.X, d.Y))
	if s.Mode() != CroppingSelecting {
		t.Fatalf("expected selecting, got %v", s.Mode())
	}
	s.OnPointerMove(at(d.X+d.Width/2, d.Y+d.Height/2))
	s.OnPointerUp(at(d.X+d.Width/2, d.Y+d.Height/2))

	if err := s.ConfirmCrop(); err != nil {
		t.Fatalf("ConfirmCrop failed: %v", err)
	}
	region, ok := s.CropRegion()
	if !ok || region != image.Rect(0, 0, 100, 50) {
		t.Errorf("expected top-left quarter, got %v", region)
	}
	if s.Mode() != Idle {
		t.Errorf("expected idle after confirm, got %v", s.Mode())
	}
	if s.Original().Bounds().Dx() != 200 {
		t.Error("the original upload must be kept after cropping")
	}
}

func TestConfirmSupersedesPendingUpload(t *testing.T) {
	s, dec := newTestSession(t, Options{})
	upload(t, s, "red")
	gate := make(chan struct{})
	dec.gates["slow"] = gate
	slow := s.OnImageUploaded([]byte("slow"))

	if err := s.StartCrop(); err != nil {
		t.Fatalf("StartCrop failed: %v", err)
	}
	d := s.CropDisplay()
	s.OnPointerDown(at(d.X, d.Y))
	s.OnPointerMove(at(d.Right(), d.Bottom()))
	s.OnPointerUp(at(d.Right(), d.Bottom()))
	if err := s.ConfirmCrop(); err != nil {
		t.Fatalf("ConfirmCrop failed: %v", err)
	}
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := slow.Wait(ctx); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if _, ok := s.CropRegion(); !ok {
		t.Error("the confirmed crop must survive the late upload")
	}
}

func TestCancelCrop(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	upload(t, s, "red")
	before := s.Canvas()
	if err := s.StartCrop(); err != nil {
		t.Fatalf("StartCrop failed: %v", err)
	}
	s.CancelCrop()
	if s.Mode() != Idle {
		t.Errorf("expected idle, got %v", s.Mode())
	}
	if !bytes.Equal(before.Pix, s.Canvas().Pix) {
		t.Error("cancel must restore the composed certificate")
	}
}

func TestSuggestCrop(t *testing.T) {
	s, _ := newTestSession(t, Options{Suggester: fakeSuggester{rect: image.Rect(50, 0, 150, 100)}})
	upload(t, s, "red")

	if _, err := s.SuggestCrop(context.Background()); !errors.Is(err, crop.ErrNotActive) {
		t.Fatalf("expected crop.ErrNotActive outside crop mode, got %v", err)
	}
	if err := s.StartCrop(); err != nil {
		t.Fatalf("StartCrop failed: %v", err)
	}
	if _, err := s.SuggestCrop(context.Background()); err != nil {
		t.Fatalf("SuggestCrop failed: %v", err)
	}
	if err := s.ConfirmCrop(); err != nil {
		t.Fatalf("ConfirmCrop failed: %v", err)
	}
	if region, _ := s.CropRegion(); region != image.Rect(50, 0, 150, 100) {
		t.Errorf("expected the suggested region, got %v", region)
	}
}

func TestSuggestCropOffsetOrigin(t *testing.T) {
	s, _ := newTestSession(t, Options{Suggester: fakeSuggester{rect: image.Rect(50, 0, 150, 100)}})
	upload(t, s, "offset")
	if err := s.StartCrop(); err != nil {
		t.Fatalf("StartCrop failed: %v", err)
	}
	if _, err := s.SuggestCrop(context.Background()); err != nil {
		t.Fatalf("SuggestCrop failed: %v", err)
	}
	if err := s.ConfirmCrop(); err != nil {
		t.Fatalf("ConfirmCrop failed: %v", err)
	}
	if region, _ := s.CropRegion(); region != image.Rect(50, 0, 150, 100) {
		t.Errorf("expected the region relative to the photo origin, got %v", region)
	}
}

func TestSuggestCropWithoutSuggester(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	if _, err := s.SuggestCrop(context.Background()); !errors.Is(err, ErrNoSuggester) {
		t.Fatalf("expected ErrNoSuggester, got %v", err)
	}
}

func TestExportWithoutToken(t *testing.T) {
	p := &fakePersister{}
	s, _ := newTestSession(t, Options{Persister: p})
	data, err := s.Export(context.Background())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(p.calls()) != 0 {
		t.Error("no backend call expected without a token")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("export is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != bgW || b.Dy() != bgH {
		t.Errorf("expected %dx%d, got %v", bgW, bgH, b)
	}
}

func TestExportRecordsCaption(t *testing.T) {
	p := &fakePersister{err: errors.New("backend down")}
	s, _ := newTestSession(t, Options{Persister: p, Token: "abc"})
	s.OnCaptionChanged("  Maria ", " João")

	if _, err := s.Export(context.Background()); err != nil {
		t.Fatalf("a backend failure must not fail the export: %v", err)
	}
	calls := p.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one backend call, got %d", len(calls))
	}
	want := persist.Record{Token: "abc", Donor: "Maria", Receiver: "João"}
	if calls[0] != want {
		t.Errorf("expected %+v, got %+v", want, calls[0])
	}
	if !s.Controls().ExportEnabled {
		t.Error("export must be enabled again afterwards")
	}
}

func TestExportTaintedCanvas(t *testing.T) {
	s, _ := newTestSession(t, Options{Assets: fakeAssets{tainted: true}})
	if _, err := s.Export(context.Background()); !errors.Is(err, ErrTaintedCanvas) {
		t.Fatalf("expected ErrTaintedCanvas, got %v", err)
	}
	if c := s.Controls(); !c.ExportEnabled || c.Exporting {
		t.Errorf("export must be re-enabled after a failure: %+v", c)
	}
}

func TestReset(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	upload(t, s, "red")
	s.OnCaptionChanged("a", "b")
	s.Reset()
	if s.HasPhoto() || s.Caption().Donor != "" {
		t.Error("reset must clear the photo and caption")
	}
	if got := s.Canvas().NRGBAAt(120, 140); got != bgColor {
		t.Errorf("expected bare background after reset, got %v", got)
	}
}

func TestTokenFromURL(t *testing.T) {
	tests := map[string]string{
		"https://example.org/cert?token=abc123": "abc123",
		"https://example.org/cert":              "",
		"https://example.org/?a=1&token=x%20y":  "x y",
		"://bad":                                "",
	}
	for in, want := range tests {
		if got := TokenFromURL(in); got != want {
			t.Errorf("TokenFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
