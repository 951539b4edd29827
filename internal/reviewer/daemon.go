package reviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	defaultIdleTimeout = 5 * time.Minute
	// requestDeadline covers one request/response cycle. It is slightly
	// longer than evaluatorTimeout so the daemon can still answer ASK.
	requestDeadline  = 35 * time.Second
	evaluatorTimeout = 30 * time.Second

	maxAcceptDelay = time.Second
)

// ErrAlreadyRunning is returned by Run when another daemon owns the socket.
var ErrAlreadyRunning = errors.New("reviewer: daemon already running")

// DaemonConfig holds daemon configuration.
type DaemonConfig struct {
	IdleTimeout time.Duration
	SocketPath  string
	PIDPath     string
	Logger      *slog.Logger
}

// Daemon is a persistent Unix socket server that reviews commands.
type Daemon struct {
	evaluator    Evaluator
	config       DaemonConfig
	log          *slog.Logger
	listener     net.Listener
	shuttingDown atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
}

// NewDaemon creates a new daemon with the given evaluator and config.
func NewDaemon(evaluator Evaluator, config DaemonConfig) *Daemon {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaultIdleTimeout
	}
	log := config.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Daemon{
		evaluator: evaluator,
		config:    config,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Run listens for connections and blocks until ctx is done, SIGTERM or
// SIGINT arrives, or no request came in for IdleTimeout.
func (d *Daemon) Run(ctx context.Context) error {
	socketPath := d.config.SocketPath
	if socketPath == "" || d.config.PIDPath == "" {
		return errors.New("reviewer: socket and PID paths are required")
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	if conn, err := net.DialTimeout("unix", socketPath, time.Second); err == nil {
		conn.Close()
		return fmt.Errorf("%w at %s", ErrAlreadyRunning, socketPath)
	}

	// Stale socket from a daemon that did not shut down cleanly.
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	d.listener = listener

	if err := os.WriteFile(d.config.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		d.log.Warn("write pid file", "path", d.config.PIDPath, "err", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	idleTimer := time.NewTimer(d.config.IdleTimeout)
	defer idleTimer.Stop()
	activity := make(chan struct{}, 1)

	d.log.Info("daemon started", "socket", socketPath, "pid", os.Getpid(), "idle_timeout", d.config.IdleTimeout)

	// Added before the loop starts so Shutdown's Wait never races an Add.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.acceptLoop(listener, activity)
	}()

	for running := true; running; {
		select {
		case <-ctx.Done():
			d.log.Info("daemon stopping", "cause", context.Cause(ctx))
			running = false
		case <-idleTimer.C:
			d.log.Info("daemon idle, stopping")
			running = false
		case <-d.done:
			running = false
		case <-activity:
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(d.config.IdleTimeout)
		}
	}

	d.Shutdown()
	return nil
}

// acceptLoop serves one connection at a time, matching how the hook calls
// us. Temporary Accept failures back off like net/http's server does.
func (d *Daemon) acceptLoop(listener net.Listener, activity chan<- struct{}) {
	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if d.shuttingDown.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			d.log.Warn("accept", "err", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-d.done:
				return
			}
			continue
		}
		delay = 0

		select {
		case activity <- struct{}{}:
		default:
		}
		d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(requestDeadline))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Response{Decision: DecisionAsk, Reason: "failed to decode request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), evaluatorTimeout)
	defer cancel()

	start := time.Now()
	resp, err := d.evaluator.Evaluate(ctx, req)
	if err != nil {
		resp = Response{Decision: DecisionAsk, Reason: "evaluator error: " + err.Error()}
	}
	if resp.Decision != DecisionAllow {
		resp.Decision = DecisionAsk
	}
	d.log.Info("reviewed", "request_id", req.ID, "decision", resp.Decision, "took", time.Since(start))

	json.NewEncoder(conn).Encode(resp)
}

// Shutdown gracefully stops the daemon.
func (d *Daemon) Shutdown() {
	if !d.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	close(d.done)

	if d.listener != nil {
		d.listener.Close()
	}

	d.wg.Wait()

	os.Remove(d.config.SocketPath)
	os.Remove(d.config.PIDPath)

	d.evaluator.Close()
}
