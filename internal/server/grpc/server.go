package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/dmitrijs2005/notesync/internal/server/merge"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"google.golang.org/grpc"
)

// MaxBatchSize bounds the number of changes in one SubmitChanges call.
const MaxBatchSize = 500

type changeEngine interface {
	Apply(ctx context.Context, ownerID string, c models.Candidate) (merge.Result, error)
	Pull(ctx context.Context, ownerID string, cursor models.Cursor, pageSize int) ([]*models.Note, int, error)
}

type attachmentPresigner interface {
	PresignUpload(ctx context.Context, ownerID, noteID string) (*models.AttachmentTicket, error)
	PresignDownload(ctx context.Context, ownerID, noteID, key string) (*models.AttachmentTicket, error)
}

type GRPCServer struct {
	rpc.UnimplementedSyncServiceServer
	address     string
	engine      changeEngine
	attachments attachmentPresigner
	logger      logging.Logger
	jwtSecret   []byte
	now         func() time.Time
}

// NewGRPCServer wires the sync handlers. presigner may be nil, in which case
// attachment calls fail with codes.FailedPrecondition.
func NewGRPCServer(a string, l logging.Logger, engine changeEngine, presigner attachmentPresigner, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		engine:      engine,
		attachments: presigner,
		jwtSecret:   []byte(secretKey),
		now:         time.Now,
	}
}

// Build returns a gRPC server with the auth interceptor and the sync service
// registered, ready to Serve on any listener.
func (s *GRPCServer) Build(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.accessTokenInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	rpc.RegisterSyncServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.Build()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
