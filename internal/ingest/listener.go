package ingest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/banshee-data/evrecon/internal/monitoring"
)

// UDPListener receives serialized event arrays over UDP and hands them to
// a Handler.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       Stats
	handler     Handler

	mu    sync.Mutex
	conn  *net.UDPConn
	ready chan struct{}
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       Stats
	Handler     Handler
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       orNoop(config.Stats),
		handler:     config.Handler,
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the socket is bound.
func (l *UDPListener) Ready() <-chan struct{} { return l.ready }

// LocalAddr returns the bound address, or nil before Ready.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start listens until ctx is cancelled or the handler returns an error.
// The stats logger has stopped by the time Start returns.
func (l *UDPListener) Start(ctx context.Context) error {
	if l.handler == nil {
		return fmt.Errorf("UDP listener requires a handler")
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	close(l.ready)

	monitoring.Logf("UDP listener started on %s", conn.LocalAddr())

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.startStatsLogging(ctx)
	}()

	buffer := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		l.stats.AddBuffer(n)
		arr, err := codec.UnmarshalEventArray(buffer[:n])
		if err != nil {
			l.stats.AddDropped()
			monitoring.Logf("Dropping undecodable datagram from %v: %v", from, err)
			continue
		}
		if err := l.handler(arr); err != nil {
			return err
		}
	}
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}
