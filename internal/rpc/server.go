package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/weftlabs/weft/internal/graph"
	"github.com/weftlabs/weft/internal/storage"
)

// ServerVersion is stamped by the daemon before Start.
var ServerVersion = "0.0.0"

// DefaultRequestTimeout bounds one request's storage work.
const DefaultRequestTimeout = time.Second

// Server handles weft requests over a unix socket. Each connection gets its
// own goroutine; requests within a connection are sequential.
type Server struct {
	storage   storage.Storage
	evaluator *graph.Evaluator
	backend   string
	listener  net.Listener
	sockPath  string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex // protects shutdown state
	shutdown  bool
	startTime time.Time
	handlers  map[string]func(context.Context, *Request) *Response

	requestTimeout time.Duration

	// kvStatusFn reports the key-value connection state for the status
	// operation, set by the daemon when redis is configured.
	kvStatusFn func(context.Context) string

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewServer creates a server over a storage backend. backend is the name
// reported by status ("mysql", "memory").
func NewServer(store storage.Storage, evaluator *graph.Evaluator, backend, sockPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		storage:        store,
		evaluator:      evaluator,
		backend:        backend,
		sockPath:       sockPath,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		requestTimeout: DefaultRequestTimeout,
		shutdownCh:     make(chan struct{}),
	}
	s.initHandlers()
	return s
}

// SetRequestTimeout overrides the per-request deadline. Must be called
// before Start.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// SetKVStatusFn sets the callback that reports key-value connection health
// on status requests. Must be called before Start.
func (s *Server) SetKVStatusFn(fn func(context.Context) string) {
	s.kvStatusFn = fn
}

// ShutdownRequested is closed when a client issues the shutdown operation.
// The daemon watches it and calls Stop.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}

func (s *Server) initHandlers() {
	s.handlers = map[string]func(context.Context, *Request) *Response{
		OpPing:     s.handlePing,
		OpStatus:   s.handleStatus,
		OpShutdown: s.handleShutdown,

		OpPrincipalCreate:   s.handlePrincipalStore,
		OpPrincipalRetrieve: s.handlePrincipalRetrieve,
		OpPrincipalUpdate:   s.handlePrincipalStore,
		OpPrincipalDelete:   s.handlePrincipalDelete,

		OpRecordGrant:  s.handleRecordGrant,
		OpRecordRevoke: s.handleRecordRevoke,
		OpRecordCheck:  s.handleRecordCheck,

		OpResourcesList:           s.handleResourcesList,
		OpResourcesListPrincipals: s.handleResourcesListPrincipals,

		OpEntitiesList:           s.handleEntitiesList,
		OpEntitiesListPrincipals: s.handleEntitiesListPrincipals,

		OpRelationCreate:    s.handleRelationCreate,
		OpRelationDelete:    s.handleRelationDelete,
		OpRelationCheck:     s.handleRelationCheck,
		OpRelationListLeft:  s.handleRelationListLeft,
		OpRelationListRight: s.handleRelationListRight,
	}
}

// Start begins listening on the unix socket.
func (s *Server) Start() error {
	if err := os.Remove(s.sockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.sockPath, err)
	}
	s.listener = listener

	if err := os.Chmod(s.sockPath, 0600); err != nil {
		s.listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop drains connections and removes the socket. Idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	if err := os.Remove(s.sockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket: %w", err)
	}

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				fmt.Fprintf(os.Stderr, "Error accepting connection: %v\n", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendResponse(writer, invalidArgs(fmt.Errorf("invalid request JSON: %w", err)))
			continue
		}

		s.sendResponse(writer, s.handleRequest(&req))
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading from connection: %v\n", err)
	}
}

func (s *Server) sendResponse(writer *bufio.Writer, resp *Response) {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling response: %v\n", err)
		return
	}

	if _, err := writer.Write(respJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing response: %v\n", err)
		return
	}
	if _, err := writer.Write([]byte("\n")); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing newline: %v\n", err)
		return
	}
	if err := writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing response: %v\n", err)
	}
}

// handleRequest dispatches one request. Every handler returns exactly one
// response; an error response is terminal for the request.
func (s *Server) handleRequest(req *Request) *Response {
	handler, ok := s.handlers[req.Operation]
	if !ok {
		return &Response{
			Error:  fmt.Sprintf("unknown operation: %s", req.Operation),
			Status: StatusUnknown,
		}
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.requestTimeout)
	defer cancel()
	return handler(ctx, req)
}

func (s *Server) handlePing(_ context.Context, _ *Request) *Response {
	return successResponse(map[string]string{"pong": ServerVersion})
}

func (s *Server) handleStatus(ctx context.Context, req *Request) *Response {
	stats, err := s.storage.Statistics(ctx, req.SpaceID)
	if err != nil {
		return errorResponse(err)
	}

	st := &StatusResult{
		Version:    ServerVersion,
		Backend:    s.backend,
		UptimeSecs: int64(time.Since(s.startTime).Seconds()),
		Space:      req.SpaceID,
		Principals: stats.Principals,
		Records:    stats.Records,
		Tuples:     stats.Tuples,
	}
	if s.kvStatusFn != nil {
		st.KV = s.kvStatusFn(ctx)
	}
	return successResponse(st)
}

func (s *Server) handleShutdown(_ context.Context, _ *Request) *Response {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	return successResponse(map[string]string{"shutdown": "requested"})
}
