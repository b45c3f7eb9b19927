package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/streamware/wsbridge/internal/utils"
)

// ConnectionsLimiter limits the number of simultaneous streaming connections per IP.
type ConnectionsLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	max         int
	realIP      *utils.RealIPExtractor
}

func NewConnectionLimiter(max int, extractor *utils.RealIPExtractor) *ConnectionsLimiter {
	return &ConnectionsLimiter{
		connections: map[string]int{},
		max:         max,
		realIP:      extractor,
	}
}

// LeaseConnection increases the number of connections held by the request's
// IP and returns a release function to be called once the session is done.
// When the IP is at its limit, LeaseConnection returns an error instead.
func (l *ConnectionsLimiter) LeaseConnection(request *http.Request) (release func(), err error) {
	key := fmt.Sprintf("ip-%v", l.realIP.Extract(request))
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[key] >= l.max {
		return nil, fmt.Errorf("you have reached the limit of streaming connections: %v max", l.max)
	}
	l.connections[key] += 1

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.connections[key] -= 1
		if l.connections[key] == 0 {
			delete(l.connections, key)
		}
	}, nil
}
