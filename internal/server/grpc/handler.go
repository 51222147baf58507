package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps a service error to a gRPC status.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.PermissionDenied, "forbidden")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) ownerID(ctx context.Context) (string, error) {
	id, ok := OwnerIDFromContext(ctx)
	if !ok {
		s.logger.Error(ctx, "Owner id missing from context")
		return "", status.Error(codes.Internal, "internal error")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *rpc.PingRequest) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK", ServerTime: clock.Format(s.now())}, nil
}

// SubmitChanges merges a batch of changes in order. A change the engine rejects
// as invalid is reported in its own result so the rest of the batch proceeds.
// A storage failure aborts the call; changes merged before it stay merged and
// are no-ops when the client retries.
func (s *GRPCServer) SubmitChanges(ctx context.Context, req *rpc.SubmitChangesRequest) (*rpc.SubmitChangesResponse, error) {

	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return nil, err
	}

	if len(req.Changes) > MaxBatchSize {
		return nil, status.Errorf(codes.InvalidArgument, "batch of %d changes exceeds %d", len(req.Changes), MaxBatchSize)
	}

	results := make([]rpc.ChangeResult, len(req.Changes))
	for i, change := range req.Changes {
		if change.Operation != rpc.OperationUpsert && change.Operation != rpc.OperationDelete {
			results[i] = rpc.ChangeResult{ErrorCode: rpc.ErrorCodeInvalid, Error: fmt.Sprintf("unknown operation %q", change.Operation)}
			continue
		}

		res, err := s.engine.Apply(ctx, ownerID, changeToCandidate(change))
		if err != nil {
			if errors.Is(err, common.ErrValidation) {
				s.logger.Info(ctx, "Change rejected", "owner", ownerID, "index", i, "error", err.Error())
				results[i] = rpc.ChangeResult{ErrorCode: rpc.ErrorCodeInvalid, Error: err.Error()}
				continue
			}
			s.logger.Error(ctx, "Change merge failed", "owner", ownerID, "index", i, "error", err.Error())
			return nil, toStatus(err)
		}

		canonical := noteToWire(res.Canonical)
		results[i] = rpc.ChangeResult{Applied: res.Applied, Canonical: &canonical}
	}

	return &rpc.SubmitChangesResponse{Results: results, ServerTime: clock.Format(s.now())}, nil
}

func (s *GRPCServer) PullChanges(ctx context.Context, req *rpc.PullChangesRequest) (*rpc.PullChangesResponse, error) {

	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return nil, err
	}

	notes, pageSize, err := s.engine.Pull(ctx, ownerID, models.Cursor{UpdatedAt: req.Since, ID: req.SinceID}, req.PageSize)
	if err != nil {
		if !errors.Is(err, common.ErrValidation) {
			s.logger.Error(ctx, "Pull failed", "owner", ownerID, "error", err.Error())
		}
		return nil, toStatus(err)
	}

	items := make([]rpc.Note, 0, len(notes))
	for _, n := range notes {
		items = append(items, noteToWire(n))
	}

	return &rpc.PullChangesResponse{Items: items, PageSize: pageSize, ServerNow: clock.Format(s.now())}, nil
}

func (s *GRPCServer) PresignAttachmentUpload(ctx context.Context, req *rpc.PresignAttachmentRequest) (*rpc.PresignAttachmentResponse, error) {
	return s.presign(ctx, func(ownerID string) (*models.AttachmentTicket, error) {
		return s.attachments.PresignUpload(ctx, ownerID, req.NoteID)
	})
}

func (s *GRPCServer) PresignAttachmentDownload(ctx context.Context, req *rpc.PresignAttachmentRequest) (*rpc.PresignAttachmentResponse, error) {
	return s.presign(ctx, func(ownerID string) (*models.AttachmentTicket, error) {
		return s.attachments.PresignDownload(ctx, ownerID, req.NoteID, req.Key)
	})
}

func (s *GRPCServer) presign(ctx context.Context, issue func(ownerID string) (*models.AttachmentTicket, error)) (*rpc.PresignAttachmentResponse, error) {

	if s.attachments == nil {
		return nil, status.Error(codes.FailedPrecondition, "attachments are disabled")
	}

	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return nil, err
	}

	ticket, err := issue(ownerID)
	if err != nil {
		s.logger.Error(ctx, "Presign failed", "owner", ownerID, "error", err.Error())
		return nil, toStatus(err)
	}

	return &rpc.PresignAttachmentResponse{Key: ticket.Key, URL: ticket.URL, ExpiresAt: clock.Format(ticket.ExpiresAt)}, nil
}
