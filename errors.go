package lockfree

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lockfree/internal/blockalloc"
	"github.com/hupe1980/lockfree/internal/hazard"
	"github.com/hupe1980/lockfree/internal/pool"
	"github.com/hupe1980/lockfree/internal/queue"
	"github.com/hupe1980/lockfree/resource"
)

var (
	// ErrInvalidCapacity is returned when a pool or allocator capacity is out of range.
	ErrInvalidCapacity = pool.ErrInvalidCapacity
	// ErrInvalidHandle is returned when releasing a zero Handle.
	ErrInvalidHandle = pool.ErrInvalidHandle
	// ErrForeignHandle is returned when a handle is released into a pool that did not issue it.
	ErrForeignHandle = pool.ErrForeignHandle
	// ErrStaleHandle is returned when a handle was already released.
	ErrStaleHandle = pool.ErrStaleHandle

	// ErrInvalidBlockSize is returned when the block size is not positive.
	ErrInvalidBlockSize = blockalloc.ErrInvalidBlockSize
	// ErrOutOfMemory is returned when every block of an allocator is in use.
	ErrOutOfMemory = blockalloc.ErrOutOfMemory
	// ErrClosed is returned when using a closed container.
	ErrClosed = blockalloc.ErrClosed
	// ErrInvalidBlock is returned when deallocating a zero Block.
	ErrInvalidBlock = blockalloc.ErrInvalidBlock
	// ErrForeignBlock is returned when a block is deallocated into an allocator that did not issue it.
	ErrForeignBlock = blockalloc.ErrForeignBlock
	// ErrStaleBlock is returned when a block was already deallocated.
	ErrStaleBlock = blockalloc.ErrStaleBlock

	// ErrInvalidParticipants is returned when a registry is created with no room.
	ErrInvalidParticipants = hazard.ErrInvalidParticipants
	// ErrRegistryFull is returned by Register when every participant slot is in use.
	ErrRegistryFull = hazard.ErrRegistryFull
	// ErrNotRegistered is returned when unregistering a participant twice.
	ErrNotRegistered = hazard.ErrNotRegistered
	// ErrInvalidInterval is returned by StartSweeper for a non-positive interval.
	ErrInvalidInterval = errors.New("lockfree: invalid sweep interval")
	// ErrSweeperRunning is returned by StartSweeper while a sweeper is running.
	ErrSweeperRunning = errors.New("lockfree: sweeper already running")
	// ErrNilRegistry is returned when a queue is created without a registry.
	ErrNilRegistry = queue.ErrNilRegistry
	// ErrNilParticipant is the panic value of a queue operation given a nil
	// participant.
	ErrNilParticipant = queue.ErrNilParticipant
	// ErrForeignParticipant is the panic value of a queue operation given a
	// participant of another registry.
	ErrForeignParticipant = queue.ErrForeignParticipant

	// ErrMemoryLimitExceeded is returned when a construction would exceed the
	// resource controller's memory limit.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
)

// translateError maps core errors onto the root package's sentinels so
// callers can match one error value per condition.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, blockalloc.ErrInvalidCapacity) {
		return fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}

	return err
}
