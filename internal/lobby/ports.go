package lobby

import (
	"fmt"
	"net"
	"sync"
)

// PortAllocator hands out listeners on free TCP ports from a fixed range.
// It remembers where the previous scan stopped so consecutive matches
// spread across the range instead of fighting over its bottom.
type PortAllocator struct {
	mu    sync.Mutex
	min   int
	max   int
	tries int
	next  int
}

// NewPortAllocator scans [min, max], probing at most tries ports per call.
func NewPortAllocator(min, max, tries int) *PortAllocator {
	return &PortAllocator{min: min, max: max, tries: tries, next: min}
}

// Listen binds the first free port in the range and returns the listener
// with its port number.
func (a *PortAllocator) Listen(host string) (net.Listener, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for range a.tries {
		port := a.next
		a.next++
		if a.next > a.max {
			a.next = a.min
		}
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err != nil {
			continue
		}
		return ln, port, nil
	}
	return nil, 0, fmt.Errorf("no free port in [%d,%d] after %d attempts", a.min, a.max, a.tries)
}
