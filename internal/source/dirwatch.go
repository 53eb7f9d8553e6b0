package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"permit-enforcement/internal/domain/permit"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

// DirWatcher processes image files created in a drop directory. Producers
// should write elsewhere and rename into the directory so a file is complete
// when its create event fires.
type DirWatcher struct {
	dir       string
	watcher   *fsnotify.Watcher
	processor Processor
	log       zerolog.Logger
}

// NewDirWatcher starts watching dir immediately; files created after it
// returns are picked up by Run.
func NewDirWatcher(dir string, processor Processor, log zerolog.Logger) (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &DirWatcher{
		dir:       dir,
		watcher:   w,
		processor: processor,
		log:       log.With().Str("component", "dir_watcher").Str("dir", dir).Logger(),
	}, nil
}

// Run blocks until ctx is cancelled, then releases the watcher.
func (d *DirWatcher) Run(ctx context.Context) {
	defer d.watcher.Close()
	d.log.Info().Msg("watching drop directory")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dir watcher stopped")
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) || !isImage(ev.Name) {
				continue
			}
			d.handleFile(ctx, ev.Name)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (d *DirWatcher) handleFile(ctx context.Context, path string) {
	log := d.log.With().Str("file", path).Logger()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Msg("read image failed")
		return
	}

	img := permit.Image{
		Name:      filepath.Base(path),
		Size:      int64(len(data)),
		Source:    SourceDir,
		Data:      data,
		ArrivedAt: time.Now(),
	}
	if _, err := d.processor.ProcessImage(ctx, img); err != nil {
		log.Error().Err(err).Bool("retryable", retryable(err)).Msg("image processing failed")
	}
}

func isImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}
