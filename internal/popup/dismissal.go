package popup

import (
	"sync"
	"time"

	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/internal/clock"
)

const DefaultDismissCooldown = time.Hour

// DismissalTracker remembers when a viewer closed the notice for a client
// code and hides dismissible notices until the cooldown elapses.
type DismissalTracker struct {
	mu        sync.Mutex
	clock     clock.Clock
	cooldown  time.Duration
	dismissed map[string]time.Time
}

func NewDismissalTracker(clk clock.Clock, cooldown time.Duration) *DismissalTracker {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if cooldown <= 0 {
		cooldown = DefaultDismissCooldown
	}
	return &DismissalTracker{
		clock:     clk,
		cooldown:  cooldown,
		dismissed: make(map[string]time.Time),
	}
}

func (t *DismissalTracker) Dismiss(clientCode string) {
	code := clientdomain.NormalizeCode(clientCode)
	t.mu.Lock()
	t.dismissed[code] = t.clock.Now()
	t.mu.Unlock()
}

// Suppressed reports whether a dismissal for the code is still within the cooldown.
func (t *DismissalTracker) Suppressed(clientCode string) bool {
	code := clientdomain.NormalizeCode(clientCode)
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.dismissed[code]
	if !ok {
		return false
	}
	if t.clock.Now().Sub(at) >= t.cooldown {
		delete(t.dismissed, code)
		return false
	}
	return true
}

func (t *DismissalTracker) ShouldDisplay(clientCode string, notice Notice) bool {
	if !notice.Show {
		return false
	}
	if !notice.Dismissible {
		return true
	}
	return !t.Suppressed(clientCode)
}
