package app

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/export"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// RunExport writes the CSV files for the session at path into dir. With
// withStrokes the session is replayed first and the detected strokes are
// exported too.
func RunExport(ctx context.Context, path, dir string, withStrokes bool, opts ReplayOptions, logger *zap.Logger) ([]string, error) {
	s, err := ReadSession(path)
	if err != nil {
		return nil, err
	}

	var strokes []stroke.Event
	if withStrokes {
		r, err := Analyze(ctx, s, opts)
		if err != nil {
			return nil, err
		}
		strokes = r.Strokes
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if dir == "" {
		dir = filepath.Dir(path)
	}
	paths, err := export.Files(dir, base, s, strokes)
	for _, p := range paths {
		logger.Info("exported", zap.String("file", p))
	}
	return paths, err
}
