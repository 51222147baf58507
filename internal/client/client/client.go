package client

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/rpc"
)

type Client interface {
	Close() error
	// Ping returns the server clock.
	Ping(ctx context.Context) (string, error)
	SubmitChanges(ctx context.Context, changes []rpc.Change) (*rpc.SubmitChangesResponse, error)
	PullChanges(ctx context.Context, since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error)
	PresignUpload(ctx context.Context, noteID string) (*rpc.PresignAttachmentResponse, error)
	PresignDownload(ctx context.Context, noteID, key string) (*rpc.PresignAttachmentResponse, error)
}
