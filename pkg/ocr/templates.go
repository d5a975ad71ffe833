package ocr

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"shardscan/models"
)

// TemplateTable is an immutable mapping from shard type to its icon template.
// Individual missing entries are tolerated (the locator just skips them);
// an entirely empty table is a startup error.
type TemplateTable struct {
	icons map[models.ShardType]*grayPlane
}

// Get returns the template plane for a shard type, or nil when absent.
func (t *TemplateTable) Get(st models.ShardType) *grayPlane {
	if t == nil {
		return nil
	}
	return t.icons[st]
}

// Len reports how many of the five templates are present.
func (t *TemplateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.icons)
}

// LoadTemplates reads <dir>/<shard>.png for each shard type. Unreadable or
// missing files are logged and skipped; the request-time fallback path covers
// them. Returns ErrNoTemplates only when nothing at all loaded.
func LoadTemplates(dir string, log zerolog.Logger) (*TemplateTable, error) {
	icons := make(map[models.ShardType]*grayPlane, len(models.DisplayOrder))
	for _, st := range models.DisplayOrder {
		path := filepath.Join(dir, st.String()+".png")
		img, err := imaging.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn().Str("shard", st.String()).Str("path", path).Msg("icon template missing")
			} else {
				log.Warn().Err(err).Str("shard", st.String()).Str("path", path).Msg("icon template unreadable")
			}
			continue
		}
		plane := newGrayPlane(imaging.Grayscale(img))
		icons[st] = plane
		log.Info().Str("shard", st.String()).Int("w", plane.w).Int("h", plane.h).Msg("icon template loaded")
	}
	if len(icons) == 0 {
		return nil, fmt.Errorf("%w: dir=%s", ErrNoTemplates, dir)
	}
	return &TemplateTable{icons: icons}, nil
}

// TemplateStore holds the current table and supports atomic hot reload when
// the asset directory changes on disk.
type TemplateStore struct {
	dir     string
	log     zerolog.Logger
	current atomic.Pointer[TemplateTable]
	watcher *fsnotify.Watcher
}

func NewTemplateStore(dir string, log zerolog.Logger) (*TemplateStore, error) {
	table, err := LoadTemplates(dir, log)
	if err != nil {
		return nil, err
	}
	s := &TemplateStore{dir: dir, log: log}
	s.current.Store(table)
	return s, nil
}

// Table returns the current immutable table.
func (s *TemplateStore) Table() *TemplateTable { return s.current.Load() }

// Watch reloads the table whenever a file in the asset directory changes.
// A reload that would empty the table keeps the previous one.
func (s *TemplateStore) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				table, err := LoadTemplates(s.dir, s.log)
				if err != nil {
					s.log.Warn().Err(err).Msg("template reload skipped, keeping previous table")
					continue
				}
				s.current.Store(table)
				s.log.Info().Int("templates", table.Len()).Str("trigger", ev.Name).Msg("template table reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("template watcher error")
			}
		}
	}()
	return nil
}

// Close stops the watcher if one was started.
func (s *TemplateStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// grayPlane is a float grayscale raster used by the matcher.
type grayPlane struct {
	w, h int
	pix  []float64
}

func newGrayPlane(img image.Image) *grayPlane {
	b := img.Bounds()
	p := &grayPlane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			p.pix[i] = float64(r+g+bb) / 3 / 257
			i++
		}
	}
	return p
}

func (p *grayPlane) at(x, y int) float64 { return p.pix[y*p.w+x] }

// resized returns the plane scaled to w x h via imaging's Lanczos filter.
func (p *grayPlane) resized(w, h int) *grayPlane {
	img := image.NewGray(image.Rect(0, 0, p.w, p.h))
	for i, v := range p.pix {
		img.Pix[i] = uint8(v + 0.5)
	}
	return newGrayPlane(imaging.Resize(img, w, h, imaging.Lanczos))
}
