// Package browser leases headless browser sessions from a bounded pool.
package browser

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrPoolExhausted is returned when no session frees up within the
	// acquire timeout.
	ErrPoolExhausted = eris.New("browser: pool exhausted")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = eris.New("browser: pool closed")
)

// Viewport is the emulated screen for a screenshot.
type Viewport struct {
	Width             int
	Height            int
	DeviceScaleFactor float64
	Mobile            bool
}

var (
	Desktop = Viewport{Width: 1440, Height: 900, DeviceScaleFactor: 1}
	Mobile  = Viewport{Width: 390, Height: 844, DeviceScaleFactor: 1, Mobile: true}
)

// Navigation is the outcome of loading one page.
type Navigation struct {
	FinalURL   string
	StatusCode int
	HTML       string
	LoadTime   time.Duration
}

// Session is one leased browser tab.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (*Navigation, error)
	Screenshot(ctx context.Context, vp Viewport) ([]byte, error)
	Close() error
}

// Opener creates a fresh session for a lease.
type Opener func(ctx context.Context) (Session, error)

// Pool bounds the number of concurrently open sessions. Waiters queue on a
// channel and give up after their acquire timeout.
type Pool struct {
	slots  chan struct{}
	open   Opener
	closer io.Closer

	mu     sync.Mutex
	closed bool
}

// NewPool creates a Pool of the given size. closer, when non-nil, is closed
// by Close (typically the underlying browser process).
func NewPool(size int, open Opener, closer io.Closer) *Pool {
	if size <= 0 {
		size = 3
	}
	return &Pool{
		slots:  make(chan struct{}, size),
		open:   open,
		closer: closer,
	}
}

// Size returns the pool capacity.
func (p *Pool) Size() int { return cap(p.slots) }

// InUse returns the number of leased sessions.
func (p *Pool) InUse() int { return len(p.slots) }

// Acquire waits up to timeout for a free slot and opens a session in it.
// A non-positive timeout waits until ctx is done.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "browser: acquire")
	case <-expired:
		return nil, eris.Wrapf(ErrPoolExhausted, "waited %s", timeout)
	}

	s, err := p.open(ctx)
	if err != nil {
		<-p.slots
		return nil, eris.Wrap(err, "browser: open session")
	}
	return s, nil
}

// Release closes the session and frees its slot.
func (p *Pool) Release(s Session) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		zap.L().Debug("browser: close session", zap.Error(err))
	}
	<-p.slots
}

// Close rejects further acquires and closes the underlying browser.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
