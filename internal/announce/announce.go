// Package announce plays short audio cues on mission transitions. Playback
// is best effort: callers are never blocked and failures are only logged.
package announce

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/lanepilot/internal/security"
)

// Announcer requests a cue. Implementations must not block.
type Announcer interface {
	Announce(category, name string)
}

// Player plays one cue synchronously.
type Player interface {
	Play(ctx context.Context, category, name string) error
}

// ErrNoAsset is returned when the cue file does not exist.
var ErrNoAsset = errors.New("announce: asset not found")

type cue struct{ category, name string }

// Async queues cues for a Player on a background goroutine. Cues that
// arrive while the queue is full are dropped.
type Async struct {
	player  Player
	timeout time.Duration
	cues    chan cue
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a worker for player with room for depth pending cues.
func NewAsync(player Player, depth int, timeout time.Duration) *Async {
	a := &Async{
		player:  player,
		timeout: timeout,
		cues:    make(chan cue, max(depth, 1)),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Announce implements Announcer.
func (a *Async) Announce(category, name string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		opsf("[Announcer] dropped %s/%s: closed", category, name)
		return
	}
	select {
	case a.cues <- cue{category, name}:
	default:
		opsf("[Announcer] dropped %s/%s: queue full", category, name)
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for c := range a.cues {
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if a.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		if err := a.player.Play(ctx, c.category, c.name); err != nil {
			opsf("[Announcer] %s/%s failed: %v", c.category, c.name, err)
		} else {
			diagf("[Announcer] played %s/%s", c.category, c.name)
		}
		cancel()
	}
}

// Close stops accepting cues and waits for queued ones to finish.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.cues)
	}
	a.mu.Unlock()
	<-a.done
}

// CommandPlayer plays <Dir>/<category>/<name>.<Ext> by running Command with
// the file path appended, e.g. []string{"mpg123", "-q"}.
type CommandPlayer struct {
	Dir     string
	Ext     string
	Command []string
}

// Path returns the asset path for a cue.
func (p CommandPlayer) Path(category, name string) string {
	ext := p.Ext
	if ext == "" {
		ext = "mp3"
	}
	return filepath.Join(p.Dir, category, name+"."+ext)
}

// Play implements Player.
func (p CommandPlayer) Play(ctx context.Context, category, name string) error {
	path := p.Path(category, name)
	if err := security.Within(path, p.Dir); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrNoAsset, path)
	}
	if len(p.Command) == 0 {
		return fmt.Errorf("no player command configured")
	}
	args := append(append([]string(nil), p.Command[1:]...), path)
	out, err := exec.CommandContext(ctx, p.Command[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w (%s)", p.Command[0], err, out)
	}
	return nil
}

// LogPlayer only logs cues. It stands in for audio in simulation.
type LogPlayer struct{}

// Play implements Player.
func (LogPlayer) Play(_ context.Context, category, name string) error {
	diagf("[Announcer] (silent) %s/%s", category, name)
	return nil
}

// Recorder is an Announcer that stores cues for inspection.
type Recorder struct {
	mu   sync.Mutex
	cues []string
}

// Announce implements Announcer.
func (r *Recorder) Announce(category, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, category+"/"+name)
}

// Cues returns the announced cues as "category/name".
func (r *Recorder) Cues() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cues...)
}
