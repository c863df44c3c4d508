package storage

import (
	"context"
	"errors"

	"chatsphere/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
)

// Gateway is the durable-store boundary the messaging core talks through.
// The store is the system of record: the core never caches message content,
// and every broadcast new_message corresponds to a row written here first.
type Gateway interface {
	// CreateMessage persists m and returns it with the store-assigned id and
	// timestamp filled in.
	CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error)

	// MarkRead flags each message as read iff its recipient is readerID,
	// stamping read_at. It returns the messages actually updated; ids that
	// were missing, already read, or owned by someone else are skipped.
	MarkRead(ctx context.Context, messageIDs []int, readerID int) ([]*models.Message, error)

	// GetGroupMembers returns the current member set of a group.
	GetGroupMembers(ctx context.Context, groupID int) (map[int]struct{}, error)

	GetUser(ctx context.Context, userID int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}
