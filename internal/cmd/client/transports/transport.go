package transports

import (
	"context"

	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/squeak"
)

// CreateStreamRequest describes a new stream.
type CreateStreamRequest struct {
	Name        string   `json:"name"`
	Subjects    []string `json:"subjects"`
	Description string   `json:"description,omitempty"`
}

// ClearProgress is reported once per cleared batch.
type ClearProgress struct {
	Batch int
	Total int
}

// TailRequest describes a live squeak subscription.
type TailRequest struct {
	// Replay asks for recent history before live squeaks.
	Replay bool
	// Filter is an optional CEL expression evaluated server-side.
	Filter string
	// Limit stops after N squeaks (0 = until ctx is done).
	Limit int
}

// StreamsTransport abstracts stream administration for the CLI.
type StreamsTransport interface {
	Create(ctx context.Context, req CreateStreamRequest) (eventlog.StreamInfo, error)
	Delete(ctx context.Context, name string) error
	Info(ctx context.Context, name string) (eventlog.StreamInfo, error)
	List(ctx context.Context) ([]eventlog.StreamInfo, error)
	// Clear drains every record of the stream, calling fn after each batch,
	// and returns the total drained.
	Clear(ctx context.Context, name string, batchSize int, fn func(ClearProgress)) (int, error)
}

// SqueaksTransport publishes and reads squeaks.
type SqueaksTransport interface {
	Publish(ctx context.Context, author, content string) (squeak.Squeak, error)
	Recent(ctx context.Context, limit int) ([]squeak.Squeak, error)
	// Tail calls fn for each squeak pushed by the gateway until ctx is done,
	// fn returns an error or Limit squeaks were seen.
	Tail(ctx context.Context, req TailRequest, fn func(squeak.Squeak) error) error
}
