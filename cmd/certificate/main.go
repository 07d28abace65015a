package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	certificate "github.com/menta2k/certificate-composer"
	"github.com/menta2k/certificate-composer/internal/config"
	"github.com/menta2k/certificate-composer/internal/utils"
	"github.com/menta2k/certificate-composer/pkg/processing"
	"github.com/menta2k/certificate-composer/pkg/session"
	"github.com/menta2k/certificate-composer/pkg/types"
)

type options struct {
	configPath string
	background string
	photo      string
	donor      string
	receiver   string
	token      string
	pageURL    string
	crop       string
	suggest    bool
	dx, dy     float64
	outDir     string
	name       string
	preview    string
	quality    int
	persistURL string
	timeout    time.Duration
	debug      bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "config file (default: "+config.GetConfigPath()+" when present)")
	flag.StringVar(&o.background, "background", "", "template image path or URL (overrides config)")
	flag.StringVar(&o.photo, "photo", "", "photo path or URL (jpg/png/gif/webp)")
	flag.StringVar(&o.donor, "de", "", "donor line")
	flag.StringVar(&o.receiver, "para", "", "receiver line")
	flag.StringVar(&o.token, "token", "", "backend token")
	flag.StringVar(&o.pageURL, "page-url", "", "composer page URL to read ?token= from")
	flag.StringVar(&o.crop, "crop", "", "crop rectangle in photo pixels: x,y,w,h")
	flag.BoolVar(&o.suggest, "suggest", false, "crop to the configured suggestion backend's proposal")
	flag.Float64Var(&o.dx, "dx", 0, "drag the photo horizontally by this many canvas pixels")
	flag.Float64Var(&o.dy, "dy", 0, "drag the photo vertically by this many canvas pixels")
	flag.StringVar(&o.outDir, "out", "", "output directory (overrides config)")
	flag.StringVar(&o.name, "name", "", "output file name (overrides config)")
	flag.StringVar(&o.preview, "preview", "", "also write a preview: webp|jpg")
	flag.IntVar(&o.quality, "quality", 85, "preview quality (1-100)")
	flag.StringVar(&o.persistURL, "persist-url", "", "token backend base URL (overrides config)")
	flag.DurationVar(&o.timeout, "timeout", 2*time.Minute, "overall time limit")
	flag.BoolVar(&o.debug, "debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if o.photo == "" && o.donor == "" && o.receiver == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -photo photo.jpg -de NAME -para NAME [-crop x,y,w,h | -suggest] [-dx N -dy N] [-token T] [-out dir] [-preview webp|jpg]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := run(ctx, o, logger); err != nil {
		logger.Error("certificate failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		if def := config.GetConfigPath(); utils.FileExists(def) {
			path = def
		}
	}
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if o.background != "" {
		cfg.Template.Background = o.background
	}
	if o.outDir != "" {
		cfg.Export.OutputDir = o.outDir
	}
	if o.name != "" {
		cfg.Export.Filename = o.name
	}
	if o.persistURL != "" {
		cfg.Export.PersistURL = o.persistURL
	}
	return cfg, nil
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	token := o.token
	if token == "" && o.pageURL != "" {
		token = session.TokenFromURL(o.pageURL)
	}

	s, err := certificate.NewWithConfig(cfg, certificate.WithLogger(logger), certificate.WithToken(token))
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	if o.photo != "" {
		if err := uploadPhoto(ctx, s, o.photo); err != nil {
			return err
		}
		if err := applyCrop(ctx, s, o, logger); err != nil {
			return err
		}
		dragBy(s, o.dx, o.dy)
	}

	counters := s.OnCaptionChanged(o.donor, o.receiver)
	if counters.Donor.Alert || counters.Receiver.Alert {
		logger.Warn("caption longer than recommended", "de", counters.Donor.Text, "para", counters.Receiver.Text)
	}

	data, err := s.Export(ctx)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(cfg.Export.OutputDir); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out := utils.OutputPath(cfg.Export.OutputDir, cfg.Export.Filename)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	logger.Info("wrote certificate", "path", out, "size", utils.FormatFileSize(int64(len(data))))

	if o.preview != "" {
		path := utils.PreviewFilename(out, strings.ToLower(o.preview))
		if err := processing.NewProcessor().SaveImage(s.Canvas(), path, o.preview, o.quality, false); err != nil {
			logger.Warn("preview save failed", "path", path, "error", err)
		} else {
			logger.Info("wrote preview", "path", path)
		}
	}

	if o.debug {
		x, y := s.Position()
		state, _ := json.Marshal(map[string]any{
			"token":    token,
			"controls": s.Controls(),
			"counters": counters,
			"position": []float64{x, y},
		})
		logger.Debug("final state", "state", string(state))
	}
	return nil
}

func uploadPhoto(ctx context.Context, s *session.Session, source string) error {
	p := processing.NewProcessor()
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, _, err = p.Fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	return s.OnImageUploaded(data).Wait(ctx)
}

// applyCrop replays the requested crop as pointer gestures over the crop preview.
func applyCrop(ctx context.Context, s *session.Session, o options, logger *slog.Logger) error {
	if o.crop == "" && !o.suggest {
		return nil
	}
	if err := s.StartCrop(); err != nil {
		return err
	}

	if o.suggest {
		r, err := s.SuggestCrop(ctx)
		if err != nil {
			s.CancelCrop()
			if errors.Is(err, session.ErrNoSuggester) {
				return err
			}
			logger.Warn("crop suggestion failed, keeping the full photo", "error", err)
			return nil
		}
		logger.Info("crop suggested", "selection", r)
		return s.ConfirmCrop()
	}

	rect, err := parseRect(o.crop)
	if err != nil {
		s.CancelCrop()
		return err
	}
	src := s.Original().Bounds()
	from, to := selectionGesture(s.CropDisplay(), src.Dx(), src.Dy(), rect)
	w, h := s.CanvasSize()
	vp := types.Viewport{DisplayWidth: float64(w), DisplayHeight: float64(h)}
	s.OnPointerDown(types.PointerEvent{ClientX: from.X, ClientY: from.Y, Viewport: vp})
	s.OnPointerMove(types.PointerEvent{ClientX: to.X, ClientY: to.Y, Viewport: vp})
	s.OnPointerUp(types.PointerEvent{ClientX: to.X, ClientY: to.Y, Viewport: vp})
	if err := s.ConfirmCrop(); err != nil {
		s.CancelCrop()
		return err
	}
	return nil
}

// selectionGesture maps a source-pixel rectangle to the canvas points of a drag over
// the crop preview box.
func selectionGesture(display types.Rect, srcW, srcH int, r types.Rect) (types.Point, types.Point) {
	sx := display.Width / float64(srcW)
	sy := display.Height / float64(srcH)
	from := types.Point{X: display.X + r.X*sx, Y: display.Y + r.Y*sy}
	to := types.Point{X: display.X + r.Right()*sx, Y: display.Y + r.Bottom()*sy}
	return from, to
}

func dragBy(s *session.Session, dx, dy float64) {
	if dx == 0 && dy == 0 {
		return
	}
	w, h := s.CanvasSize()
	vp := types.Viewport{DisplayWidth: float64(w), DisplayHeight: float64(h)}
	handle, ok := s.DragHandle(vp)
	if !ok {
		return
	}
	// The handle sits 10px up-left of the photo centre, which is always on the photo.
	start := types.Point{X: handle.X + session.DragHandleInset, Y: handle.Y + session.DragHandleInset}
	s.OnPointerDown(types.PointerEvent{ClientX: start.X, ClientY: start.Y, Viewport: vp})
	s.OnPointerMove(types.PointerEvent{ClientX: start.X + dx, ClientY: start.Y + dy, Viewport: vp})
	s.OnPointerUp(types.PointerEvent{ClientX: start.X + dx, ClientY: start.Y + dy, Viewport: vp})
}

func parseRect(s string) (types.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.Rect{}, fmt.Errorf("crop must be x,y,w,h: %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Rect{}, fmt.Errorf("crop must be x,y,w,h: %w", err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return types.Rect{}, fmt.Errorf("crop width and height must be positive")
	}
	return types.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
