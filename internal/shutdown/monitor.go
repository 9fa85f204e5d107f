package shutdown

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StopFunc stops the host and returns once it has stopped.
type StopFunc func(ctx context.Context) error

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// Port to listen on; 0 picks a free port.
	Port int
	Key  string
	// ReadTimeout bounds how long a client may take to send its request.
	ReadTimeout time.Duration
	// StopTimeout bounds the stop hook.
	StopTimeout time.Duration
}

// Monitor is the listening side of the stop handshake.
type Monitor struct {
	cfg    MonitorConfig
	stop   StopFunc
	logger *zap.Logger

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	conns    map[net.Conn]struct{}
	stopping map[net.Conn]struct{}
}

// NewMonitor creates a monitor that calls stop when an authorised stop
// command arrives.
func NewMonitor(cfg MonitorConfig, stop StopFunc, logger *zap.Logger) *Monitor {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:      cfg,
		stop:     stop,
		logger:   logger.Named("stop-monitor"),
		conns:    make(map[net.Conn]struct{}),
		stopping: make(map[net.Conn]struct{}),
	}
}

// Start binds the loopback port and accepts commands in the background.
func (m *Monitor) Start() error {
	addr := net.JoinHostPort(LoopbackHost, strconv.Itoa(m.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start stop monitor on %s: %w", addr, err)
	}
	m.ln = ln

	m.wg.Add(1)
	go m.acceptLoop()

	m.logger.Info("Stop monitor listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, nil before Start.
func (m *Monitor) Addr() net.Addr {
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Close stops accepting, drops idle connections and waits for in-flight
// commands, including a pending stop acknowledgement, to finish.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var err error
	if m.ln != nil {
		err = m.ln.Close()
	}
	for conn := range m.conns {
		if _, ok := m.stopping[conn]; !ok {
			_ = conn.Close()
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (m *Monitor) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			m.logger.Warn("Stop monitor accept failed", zap.Error(err))
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conns[conn] = struct{}{}
		m.wg.Add(1)
		m.mu.Unlock()

		go m.handle(conn)
	}
}

func (m *Monitor) handle(conn net.Conn) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		delete(m.stopping, conn)
		m.mu.Unlock()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	r := bufio.NewReaderSize(io.LimitReader(conn, 2*maxLine), maxLine)

	key, err := readLine(r)
	if err != nil {
		m.logger.Debug("Stop monitor read failed", zap.Error(err))
		return
	}
	// Read the command before judging the key so the connection closes
	// cleanly instead of being reset with unread data.
	command, _ := readLine(r)

	if subtle.ConstantTimeCompare([]byte(key), []byte(m.cfg.Key)) != 1 {
		m.logger.Warn("Ignoring command with incorrect key",
			zap.String("remote", conn.RemoteAddr().String()))
		return
	}

	switch strings.ToLower(strings.TrimSpace(command)) {
	case CommandStop:
		m.handleStop(conn)
	case CommandStatus:
		m.reply(conn, ReplyOK)
	default:
		m.logger.Warn("Unknown stop monitor command", zap.String("command", command))
	}
}

func (m *Monitor) handleStop(conn net.Conn) {
	m.mu.Lock()
	m.stopping[conn] = struct{}{}
	m.mu.Unlock()

	m.logger.Info("Stop command received")

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()
	if m.stop != nil {
		if err := m.stop(ctx); err != nil {
			m.logger.Error("Stop failed", zap.Error(err))
			return
		}
	}
	m.reply(conn, ReplyStopped)
}

func (m *Monitor) reply(conn net.Conn, line string) {
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.ReadTimeout))
	if _, err := io.WriteString(conn, line+"\r\n"); err != nil {
		m.logger.Debug("Stop monitor reply failed", zap.Error(err))
	}
}
