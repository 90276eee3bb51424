// Package control exposes a read-only gRPC status service reporting the
// current run's phase and progress, grounded on tinySQL's cmd/server
// manual grpc.ServiceDesc registration (no protoc-generated stubs — the
// request/response types are hand-written Go structs, same as tinySQL's
// own execRequest/execResponse).
package control

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the status service exchange plain Go structs over gRPC
// without protoc-generated stubs, same as tinySQL's cmd/server jsonCodec.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)       { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error  { return json.Unmarshal(data, v) }

func init() { encoding.RegisterCodec(jsonCodec{}) }

// StatusRequest is the (empty) request for the Status RPC.
type StatusRequest struct{}

// StatusResponse reports one snapshot of run progress.
type StatusResponse struct {
	RunID         string
	Phase         string
	PagesWritten  uint64
	PagesVerified uint64
	PagesFailed   uint64
	BytesMoved    uint64
	StartedAt     time.Time
	Done          bool
}

// StatusServer is the interface the control service dispatches to.
type StatusServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

func registerStatusServer(s *grpc.Server, srv StatusServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "diskxerciser.Status",
		HandlerType: (*StatusServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Status", Handler: statusHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "control",
	}, srv)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/diskxerciser.Status/Status"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatusServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Tracker is the StatusServer backing implementation: an atomically-guarded
// last-known StatusResponse, updated by the orchestrator as a run
// progresses and read by incoming Status RPCs.
type Tracker struct {
	mu     sync.RWMutex
	latest StatusResponse
}

// NewTracker builds an empty Tracker for runID, starting now.
func NewTracker(runID string) *Tracker {
	return &Tracker{latest: StatusResponse{RunID: runID, Phase: "starting", StartedAt: time.Now()}}
}

// Update replaces the tracker's current snapshot.
func (t *Tracker) Update(s StatusResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = s
}

// Status implements StatusServer by returning the tracker's last snapshot.
func (t *Tracker) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.latest
	return &s, nil
}

// Server wraps a *grpc.Server bound to one Tracker, listening on addr.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// Listen starts a gRPC listener on addr and registers tracker's Status RPC.
func Listen(addr string, tracker *Tracker) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	registerStatusServer(gs, tracker)
	return &Server{grpcServer: gs, listener: lis}, nil
}

// Serve blocks, accepting Status RPCs until Stop is called.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully shuts down the gRPC server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
