// Command wsflush-echo runs a tiny TCP server that accepts raw byte
// connections, wraps each one in a wsflush.Flusher, and periodically
// pushes PING frames to every connected client while broadcasting
// whatever it reads from stdin as TEXT frames -- enough traffic to
// watch batching, gather writes, and the PING-priority jump happen
// against a real socket.
//
// It does not perform the WebSocket handshake or read any inbound
// frames -- those are out of scope for wsflush itself (see the package
// doc) -- so point a raw TCP client (nc, socat) at it to observe bytes,
// not a browser.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/behrlich/wsflush"
	"github.com/behrlich/wsflush/frame"
	"github.com/behrlich/wsflush/internal/logging"
	"github.com/behrlich/wsflush/queue"
	netxport "github.com/behrlich/wsflush/transport/net"
)

func main() {
	var (
		addr        = flag.String("addr", ":7070", "TCP address to listen on")
		metricsAddr = flag.String("metrics-addr", ":7071", "address to serve Prometheus metrics on; empty disables it")
		bufferSize  = flag.Int("buffer-size", wsflush.DefaultBufferSize, "aggregate buffer size in bytes")
		maxGather   = flag.Int("max-gather", wsflush.DefaultMaxGather, "max entries drained per engine step")
		pingEvery   = flag.Duration("ping-every", 5*time.Second, "interval between PING frames sent to each client")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	promReg := prometheus.NewRegistry()
	observer := wsflush.NewPromObserver(promReg, "wsflush_echo")
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", *metricsAddr)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("failed to listen", "addr", *addr, "error", err)
		os.Exit(1)
	}
	logger.Info("listening", "addr", *addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := newClientRegistry()

	var wg sync.WaitGroup
	go acceptLoop(ctx, ln, &wg, wsflush.Config{BufferSize: *bufferSize, MaxGather: *maxGather}, observer, logger, *pingEvery, clients)
	go broadcastStdin(ctx, clients, logger)

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	_ = ln.Close()
	wg.Wait()
}

// clientRegistry tracks the flushers of currently connected clients so a
// single broadcaster (the stdin reader) can fan a TEXT frame out to all
// of them without each connection racing over a shared input source.
type clientRegistry struct {
	mu      sync.Mutex
	clients map[string]*wsflush.Flusher
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{clients: make(map[string]*wsflush.Flusher)}
}

func (r *clientRegistry) add(remote string, f *wsflush.Flusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[remote] = f
}

func (r *clientRegistry) remove(remote string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, remote)
}

func (r *clientRegistry) snapshot() map[string]*wsflush.Flusher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*wsflush.Flusher, len(r.clients))
	for k, v := range r.clients {
		out[k] = v
	}
	return out
}

func acceptLoop(ctx context.Context, ln net.Listener, wg *sync.WaitGroup, cfg wsflush.Config, observer wsflush.Observer, logger *logging.Logger, pingEvery time.Duration, clients *clientRegistry) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.Warn("accept failed", "error", err)
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, cfg, observer, logger, pingEvery, clients)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, cfg wsflush.Config, observer wsflush.Observer, logger *logging.Logger, pingEvery time.Duration, clients *clientRegistry) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	logger.Info("client connected", "remote", remote)

	tr := netxport.New(conn)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	f, err := wsflush.New(tr, nil, cfg, &wsflush.Options{Logger: logger, Observer: observer, Context: connCtx})
	if err != nil {
		logger.Error("failed to construct flusher", "remote", remote, "error", err)
		return
	}
	defer f.Close()

	clients.add(remote, f)
	defer clients.remove(remote)

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-connCtx.Done():
			logger.Info("client disconnected", "remote", remote)
			return
		case <-ticker.C:
			fr := &frame.Frame{Opcode: frame.Ping, Fin: true}
			if err := f.Submit(fr, logCallback(logger, remote, "ping"), queue.BatchOff); err != nil {
				logger.Warn("ping submit failed", "remote", remote, "error", err)
				return
			}
		}
	}
}

// broadcastStdin reads lines from stdin and submits each as a TEXT frame
// to every currently connected client, so one terminal can drive traffic
// to all of them at once.
func broadcastStdin(ctx context.Context, clients *clientRegistry, logger *logging.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		r := bufio.NewReader(os.Stdin)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			for remote, f := range clients.snapshot() {
				fr := &frame.Frame{Opcode: frame.Text, Fin: true, Payload: []byte(line)}
				if err := f.Submit(fr, logCallback(logger, remote, "text"), queue.BatchAuto); err != nil {
					logger.Warn("text submit failed", "remote", remote, "error", err)
				}
			}
		}
	}
}

// logCallback adapts the logger into a queue.Callback that just notes
// failures; this demo has nothing more interesting to do on completion.
func logCallback(logger *logging.Logger, remote, kind string) queue.Callback {
	return queue.CallbackFunc{
		OnFailure: func(err error) {
			logger.Warn("submission failed", "remote", remote, "kind", kind, "error", err)
		},
	}
}
