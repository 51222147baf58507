package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const defaultRequestTimeout = 15 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      rpc.SyncServiceClient
	dialOptions []grpc.DialOption
	timeout     time.Duration

	mu          sync.RWMutex
	accessToken string
	sessionID   string
}

type Option func(*GRPCClient)

func WithAccessToken(token string) Option {
	return func(c *GRPCClient) { c.accessToken = token }
}

// WithSessionID tags every call with the realtime session id so the server
// does not notify this client about its own changes.
func WithSessionID(id string) Option {
	return func(c *GRPCClient) { c.sessionID = id }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *GRPCClient) { c.timeout = d }
}

// WithDialOptions appends extra dial options, e.g. a bufconn dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *GRPCClient) { c.dialOptions = append(c.dialOptions, opts...) }
}

func withCallMetadata(ctx context.Context, token, sessionID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	if sessionID != "" {
		md.Set(rpc.SessionHeaderName, sessionID)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) callMetadataInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	s.mu.RLock()
	token, sessionID := s.accessToken, s.sessionID
	s.mu.RUnlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return invoker(withCallMetadata(ctx, token, sessionID), method, req, reply, cc, opts...)
}

func NewGRPCClient(endpointURL string, opts ...Option) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: defaultRequestTimeout}
	for _, o := range opts {
		o(c)
	}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.callMetadataInterceptor),
	}, s.dialOptions...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewSyncServiceClient(conn)
	return nil
}

// SetAccessToken replaces the token used by subsequent calls.
func (s *GRPCClient) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *GRPCClient) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) (string, error) {
	resp, err := s.client.Ping(ctx, &rpc.PingRequest{})
	if err != nil {
		return "", s.mapError(err)
	}
	if resp.Status != "OK" {
		return "", ErrUnavailable
	}
	return resp.ServerTime, nil
}

func (s *GRPCClient) SubmitChanges(ctx context.Context, changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
	resp, err := s.client.SubmitChanges(ctx, &rpc.SubmitChangesRequest{Changes: changes})
	if err != nil {
		return nil, s.mapError(err)
	}
	if len(resp.Results) != len(changes) {
		return nil, fmt.Errorf("submit changes: %d results for %d changes", len(resp.Results), len(changes))
	}
	return resp, nil
}

func (s *GRPCClient) PullChanges(ctx context.Context, since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error) {
	req := &rpc.PullChangesRequest{Since: since.UpdatedAt, SinceID: since.ID, PageSize: pageSize}
	resp, err := s.client.PullChanges(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) PresignUpload(ctx context.Context, noteID string) (*rpc.PresignAttachmentResponse, error) {
	resp, err := s.client.PresignAttachmentUpload(ctx, &rpc.PresignAttachmentRequest{NoteID: noteID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) PresignDownload(ctx context.Context, noteID, key string) (*rpc.PresignAttachmentResponse, error) {
	resp, err := s.client.PresignAttachmentDownload(ctx, &rpc.PresignAttachmentRequest{NoteID: noteID, Key: key})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Canceled:
		return context.Canceled
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrValidation, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
