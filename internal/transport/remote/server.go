package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

const authorizationKey = "authorization"

// Server exposes an intraprocess transport over gRPC. Remote clients create
// publishers, subscriptions, guard conditions and events on it and wait on
// them as if they were local.
type Server struct {
	mu     sync.RWMutex
	config *Config
	logger *slog.Logger

	transport     *intraprocess.Transport
	ownsTransport bool

	auth       *JWTAuth
	grpcServer *grpc.Server
	health     *health.Server

	publishers    map[uuid.UUID]*intraprocess.Publisher
	subscriptions map[uuid.UUID]*intraprocess.Subscription
	guards        map[uuid.UUID]*intraprocess.GuardCondition
	events        map[uuid.UUID]transport.EventType

	listener net.Listener
	started  bool
	closed   bool
}

// NewServer creates a bridge server over tr. With a nil tr the server
// creates and owns its own transport. Call Start or Serve to accept calls.
func NewServer(config *Config, tr *intraprocess.Transport, logger *slog.Logger) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configCopy := *config
	configCopy.SetDefaults()

	if logger == nil {
		logger = slog.Default()
	}

	owns := false
	if tr == nil {
		tr = intraprocess.New(intraprocess.WithLogger(logger))
		owns = true
	}

	s := &Server{
		config:        &configCopy,
		logger:        logger,
		transport:     tr,
		ownsTransport: owns,
		auth:          NewJWTAuth(configCopy.AuthSecret, configCopy.TokenTTL),
		health:        health.NewServer(),
		publishers:    make(map[uuid.UUID]*intraprocess.Publisher),
		subscriptions: make(map[uuid.UUID]*intraprocess.Subscription),
		guards:        make(map[uuid.UUID]*intraprocess.GuardCondition),
		events:        make(map[uuid.UUID]transport.EventType),
	}

	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(configCopy.MaxMessageSize),
		grpc.MaxSendMsgSize(configCopy.MaxMessageSize),
		grpc.ChainUnaryInterceptor(s.authInterceptor),
	)
	s.grpcServer.RegisterService(&bridgeServiceDesc, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return s, nil
}

// Transport returns the transport the server exposes.
func (s *Server) Transport() *intraprocess.Transport {
	return s.transport
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(lis)
	}()

	// Surface immediate failures such as a closed server.
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Serve accepts bridge calls on lis and blocks until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = lis.Close()
		return fmt.Errorf("cannot serve on closed bridge server")
	}
	if s.started {
		s.mu.Unlock()
		_ = lis.Close()
		return fmt.Errorf("bridge server already started")
	}
	s.started = true
	s.listener = lis
	s.mu.Unlock()

	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("bridge server listening", "address", lis.Addr().String(), "auth_required", s.config.AuthRequired)

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("bridge server failed: %w", err)
	}
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the server. Pending waits are cancelled and their clients see
// a shutdown. A transport created by NewServer is closed as well.
// Calling Close more than once is a no-op.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.health.Shutdown()
	s.grpcServer.Stop()

	if s.ownsTransport {
		if err := s.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	s.logger.Info("bridge server stopped")
	return nil
}

// authInterceptor enforces bearer tokens on bridge calls. Login and the
// health service stay open.
func (s *Server) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !s.config.AuthRequired || info.FullMethod == methodLogin ||
		strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}

	claims, err := s.auth.ValidateToken(values[0])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return handler(context.WithValue(ctx, claimsKey{}, claims), req)
}

// toStatus maps transport errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrShutdown), errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, intraprocess.ErrUnknownHandle):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, intraprocess.ErrServiceExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, intraprocess.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, intraprocess.ErrForeignHandle),
		errors.Is(err, intraprocess.ErrUnsupportedEvent),
		errors.Is(err, intraprocess.ErrStatusType),
		errors.Is(err, intraprocess.ErrEmptyName),
		errors.Is(err, intraprocess.ErrNilEntities):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func notFound(kind string, id uuid.UUID) error {
	return status.Errorf(codes.NotFound, "no %s %s on this bridge", kind, id)
}

func localHandle(id uuid.UUID) transport.Handle {
	if id == uuid.Nil {
		return transport.Handle{}
	}
	return transport.Handle{Implementation: intraprocess.Identifier, ID: id}
}

func (s *Server) login(_ context.Context, req *loginRequest) (*loginReply, error) {
	if s.config.AuthSecret == "" {
		return nil, status.Error(codes.FailedPrecondition, "authentication is not configured")
	}
	token, expiresAt, err := s.auth.GenerateToken(req.ClientID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug("client logged in", "client_id", req.ClientID)
	return &loginReply{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Server) createPublisher(ctx context.Context, req *createTopicEntityRequest) (*entityReply, error) {
	pub, err := s.transport.CreatePublisher(req.Topic, intraprocess.QoS{
		Depth:                   req.Depth,
		Deadline:                req.Deadline,
		LivelinessLeaseDuration: req.LivelinessLeaseDuration,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	id := pub.TransportHandle().ID

	s.mu.Lock()
	s.publishers[id] = pub
	s.mu.Unlock()

	s.logCaller(ctx, "remote publisher created", "topic", req.Topic, "id", id)
	return &entityReply{ID: id}, nil
}

func (s *Server) createSubscription(ctx context.Context, req *createTopicEntityRequest) (*entityReply, error) {
	sub, err := s.transport.CreateSubscription(req.Topic, intraprocess.QoS{
		Depth:                   req.Depth,
		Deadline:                req.Deadline,
		LivelinessLeaseDuration: req.LivelinessLeaseDuration,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	id := sub.TransportHandle().ID

	s.mu.Lock()
	s.subscriptions[id] = sub
	s.mu.Unlock()

	s.logCaller(ctx, "remote subscription created", "topic", req.Topic, "id", id)
	return &entityReply{ID: id}, nil
}

func (s *Server) createGuardCondition(ctx context.Context, _ *empty) (*entityReply, error) {
	gc, err := s.transport.CreateGuardCondition()
	if err != nil {
		return nil, toStatus(err)
	}
	id := gc.TransportHandle().ID

	s.mu.Lock()
	s.guards[id] = gc
	s.mu.Unlock()

	s.logCaller(ctx, "remote guard condition created", "id", id)
	return &entityReply{ID: id}, nil
}

func (s *Server) destroyEntity(_ context.Context, req *entityRequest) (*empty, error) {
	s.mu.Lock()
	var destroy func() error
	if p, ok := s.publishers[req.ID]; ok {
		delete(s.publishers, req.ID)
		destroy = p.Destroy
	} else if sub, ok := s.subscriptions[req.ID]; ok {
		delete(s.subscriptions, req.ID)
		destroy = sub.Destroy
	} else if gc, ok := s.guards[req.ID]; ok {
		delete(s.guards, req.ID)
		destroy = gc.Destroy
	}
	s.mu.Unlock()

	if destroy == nil {
		return nil, notFound("entity", req.ID)
	}
	if err := destroy(); err != nil {
		return nil, toStatus(err)
	}
	return &empty{}, nil
}

func (s *Server) publisher(id uuid.UUID) (*intraprocess.Publisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.publishers[id]
	if !ok {
		return nil, notFound("publisher", id)
	}
	return p, nil
}

func (s *Server) publish(_ context.Context, req *publishRequest) (*empty, error) {
	p, err := s.publisher(req.ID)
	if err != nil {
		return nil, err
	}
	if err := p.Publish(req.Data); err != nil {
		return nil, toStatus(err)
	}
	return &empty{}, nil
}

func (s *Server) assertLiveliness(_ context.Context, req *entityRequest) (*empty, error) {
	p, err := s.publisher(req.ID)
	if err != nil {
		return nil, err
	}
	if err := p.AssertLiveliness(); err != nil {
		return nil, toStatus(err)
	}
	return &empty{}, nil
}

func (s *Server) take(_ context.Context, req *entityRequest) (*takeReply, error) {
	s.mu.RLock()
	sub, ok := s.subscriptions[req.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("subscription", req.ID)
	}

	data, taken, err := sub.Take()
	if err != nil {
		return nil, toStatus(err)
	}
	return &takeReply{Data: data, OK: taken}, nil
}

func (s *Server) trigger(_ context.Context, req *entityRequest) (*empty, error) {
	s.mu.RLock()
	gc, ok := s.guards[req.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("guard condition", req.ID)
	}

	if err := gc.Trigger(); err != nil {
		return nil, toStatus(err)
	}
	return &empty{}, nil
}

func (s *Server) createEvent(_ context.Context, req *createEventRequest) (*entityReply, error) {
	h, err := s.transport.CreateEvent(localHandle(req.Entity), req.Type)
	if err != nil {
		return nil, toStatus(err)
	}

	s.mu.Lock()
	s.events[h.ID] = req.Type
	s.mu.Unlock()
	return &entityReply{ID: h.ID}, nil
}

func (s *Server) destroyEvent(_ context.Context, req *entityRequest) (*empty, error) {
	s.mu.Lock()
	_, ok := s.events[req.ID]
	delete(s.events, req.ID)
	s.mu.Unlock()
	if !ok {
		return nil, notFound("event", req.ID)
	}

	if err := s.transport.DestroyEvent(localHandle(req.ID)); err != nil {
		return nil, toStatus(err)
	}
	return &empty{}, nil
}

func (s *Server) pollEvent(_ context.Context, req *entityRequest) (*pollEventReply, error) {
	s.mu.RLock()
	eventType, ok := s.events[req.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("event", req.ID)
	}

	st := transport.NewStatus(eventType)
	taken, err := s.transport.PollEvent(localHandle(req.ID), st)
	if err != nil {
		return nil, toStatus(err)
	}
	if !taken {
		return &pollEventReply{}, nil
	}

	raw, err := codec.Marshal(st)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode status: %v", err)
	}
	return &pollEventReply{Taken: true, Status: cbor.RawMessage(raw)}, nil
}

func (s *Server) wait(ctx context.Context, req *waitRequest) (*waitReply, error) {
	entities := decodeWaitSet(intraprocess.Identifier, req.Entities)

	err := s.transport.Wait(ctx, entities, req.Timeout)
	switch {
	case err == nil:
		return &waitReply{Entities: encodeWaitSet(entities)}, nil
	case errors.Is(err, transport.ErrTimeout):
		return &waitReply{Entities: encodeWaitSet(entities), TimedOut: true}, nil
	default:
		return nil, toStatus(err)
	}
}

func (s *Server) publishersInfoByTopic(_ context.Context, req *topicQueryRequest) (*endpointsReply, error) {
	infos, err := s.transport.PublishersInfoByTopic(req.Topic)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeEndpoints(infos), nil
}

func (s *Server) subscriptionsInfoByTopic(_ context.Context, req *topicQueryRequest) (*endpointsReply, error) {
	infos, err := s.transport.SubscriptionsInfoByTopic(req.Topic)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeEndpoints(infos), nil
}

func (s *Server) logCaller(ctx context.Context, msg string, args ...any) {
	if claims, ok := ClaimsFromContext(ctx); ok {
		args = append(args, "client_id", claims.ClientID)
	}
	s.logger.Debug(msg, args...)
}

// Verify that Server can be registered as the bridge handler at compile time
var _ bridgeServer = (*Server)(nil)
