// Package queue is the job queue collaborator: document ids in, document ids
// out, at-least-once. Redelivery is tolerated downstream by the claim guard.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrEmpty reports that no job was available within the dequeue block window.
var ErrEmpty = errors.New("queue empty")

type Queue interface {
	Enqueue(ctx context.Context, documentID uuid.UUID) error
	// Dequeue blocks briefly for a job; ErrEmpty means try again.
	Dequeue(ctx context.Context) (uuid.UUID, error)
	Close() error
}
