package registration

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/rgbdgrab/pointcloud"
	"go.viam.com/rgbdgrab/rimage"
)

// MaxBufferPixels bounds the buffers handed out by the default allocator.
const MaxBufferPixels = 4096 * 3072

// Allocator hands out the buffers a registration needs. The intermediate depth buffer is
// borrowed and given back with ReleaseDepth; clouds are owned by the caller of Register.
type Allocator interface {
	AcquireDepth(width, height int) (*rimage.DepthMap, error)
	ReleaseDepth(dm *rimage.DepthMap)
	AcquireCloud(width, height int) (*pointcloud.Organized, error)
}

// PoolAllocator reuses intermediate depth buffers across frames, one pool per size, and counts
// how many are currently borrowed.
type PoolAllocator struct {
	mu          sync.Mutex
	pools       map[[2]int]*sync.Pool
	outstanding atomic.Int64
}

// NewPoolAllocator returns an empty PoolAllocator.
func NewPoolAllocator() *PoolAllocator {
	return &PoolAllocator{pools: map[[2]int]*sync.Pool{}}
}

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid buffer size (%d, %d)", width, height)
	}
	if width*height > MaxBufferPixels {
		return errors.Errorf("buffer of %dx%d exceeds the %d pixel limit", width, height, MaxBufferPixels)
	}
	return nil
}

func (pa *PoolAllocator) pool(width, height int) *sync.Pool {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	key := [2]int{width, height}
	p, ok := pa.pools[key]
	if !ok {
		p = &sync.Pool{New: func() any { return rimage.NewEmptyDepthMap(width, height) }}
		pa.pools[key] = p
	}
	return p
}

// AcquireDepth borrows a zeroed depth buffer.
func (pa *PoolAllocator) AcquireDepth(width, height int) (*rimage.DepthMap, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	dm, ok := pa.pool(width, height).Get().(*rimage.DepthMap)
	if !ok {
		return nil, errors.New("depth pool returned an unexpected type")
	}
	dm.Clear()
	pa.outstanding.Inc()
	return dm, nil
}

// ReleaseDepth gives a buffer back to its pool. Releasing nil does nothing.
func (pa *PoolAllocator) ReleaseDepth(dm *rimage.DepthMap) {
	if dm == nil {
		return
	}
	pa.outstanding.Dec()
	pa.pool(dm.Width(), dm.Height()).Put(dm)
}

// AcquireCloud allocates a new cloud.
func (pa *PoolAllocator) AcquireCloud(width, height int) (*pointcloud.Organized, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	return pointcloud.NewOrganized(width, height)
}

// Outstanding returns the number of depth buffers borrowed and not yet released.
func (pa *PoolAllocator) Outstanding() int {
	return int(pa.outstanding.Load())
}
