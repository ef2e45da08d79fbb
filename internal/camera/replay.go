package camera

import (
	"fmt"
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
)

// ReplayDriver replays a directory of PNG or BMP images in lexical order.
type ReplayDriver struct {
	Dir  string
	Loop bool // restart from the first image instead of returning io.EOF
}

// NewReplayDriver creates a driver over the images in dir.
func NewReplayDriver(dir string, loop bool) *ReplayDriver {
	return &ReplayDriver{Dir: dir, Loop: loop}
}

// Open lists the replay images. It fails when the directory holds none.
func (d *ReplayDriver) Open(s Settings) (Device, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".bmp":
			files = append(files, filepath.Join(d.Dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .png or .bmp images in %s", d.Dir)
	}
	sort.Strings(files)
	diagf("[Replay] %d images from %s (loop=%v)", len(files), d.Dir, d.Loop)
	return &replayDevice{files: files, settings: s, loop: d.Loop}, nil
}

type replayDevice struct {
	mu       sync.Mutex
	files    []string
	next     int
	settings Settings
	loop     bool
	closed   bool
}

func (r *replayDevice) Read() (*Frame, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if r.next >= len(r.files) {
		if !r.loop {
			r.mu.Unlock()
			return nil, io.EOF
		}
		r.next = 0
	}
	path := r.files[r.next]
	r.next++
	r.mu.Unlock()

	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	w, h := r.settings.Width, r.settings.Height
	if w <= 0 || h <= 0 {
		b := img.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	return FromImage(img, w, h), nil
}

func (r *replayDevice) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
