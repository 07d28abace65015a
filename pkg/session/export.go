package session

import (
	"context"
	"fmt"

	"github.com/menta2k/certificate-composer/pkg/caption"
	"github.com/menta2k/certificate-composer/pkg/persist"
	"github.com/menta2k/certificate-composer/pkg/processing"
)

// Export records the caption with the backend when a token is set, then encodes the
// canvas as PNG. A failed backend call is logged and does not stop the export. Export is
// unavailable while another export is running.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.exporting {
		s.mu.Unlock()
		return nil, ErrExportInProgress
	}
	if s.background == nil && s.rendered == nil {
		s.mu.Unlock()
		return nil, ErrNoBackground
	}
	s.exporting = true
	record := persist.Record{
		Token:    s.opts.Token,
		Donor:    caption.Clean(s.caption.Donor),
		Receiver: caption.Clean(s.caption.Receiver),
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.exporting = false
		s.mu.Unlock()
	}()

	if record.Token != "" && s.opts.Persister != nil {
		if err := s.opts.Persister.Persist(ctx, record); err != nil {
			s.logger.Error("failed to record certificate", "token", record.Token, "error", err)
		} else {
			s.logger.Info("certificate recorded", "token", record.Token)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.background != nil && s.background.Tainted {
		s.logger.Error("export blocked", "error", ErrTaintedCanvas)
		return nil, ErrTaintedCanvas
	}
	data, err := processing.NewProcessor().EncodePNG(s.comp.Canvas())
	if err != nil {
		return nil, fmt.Errorf("encode certificate: %w", err)
	}
	s.logger.Info("certificate exported", "bytes", len(data))
	return data, nil
}
