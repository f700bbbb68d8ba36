// Package descriptors allocates descriptor sets from pools sized by
// per-type ratios.
package descriptors

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/internal/logging"
)

var logger = logging.Discard()

func SetLogger(l *slog.Logger) {
	logger = l
}

// PoolSizeRatio requests Ratio descriptors of Type for every set a pool holds.
type PoolSizeRatio struct {
	Type  gfx.DescriptorType
	Ratio float32
}

func poolSizes(maxSets uint32, ratios []PoolSizeRatio) []gfx.PoolSize {
	sizes := make([]gfx.PoolSize, 0, len(ratios))
	for _, r := range ratios {
		sizes = append(sizes, gfx.PoolSize{
			Type:  r.Type,
			Count: uint32(r.Ratio * float32(maxSets)),
		})
	}
	return sizes
}

// Allocator owns a single fixed-size pool. It never grows: running out of
// space is reported to the caller.
type Allocator struct {
	device gfx.Device
	pool   gfx.DescriptorPool
}

func NewAllocator(dev gfx.Device, maxSets uint32, ratios []PoolSizeRatio) (*Allocator, error) {
	pool, err := dev.CreateDescriptorPool(maxSets, poolSizes(maxSets, ratios))
	if err != nil {
		return nil, errors.Wrapf(err, "create descriptor pool for %d sets", maxSets)
	}
	return &Allocator{device: dev, pool: pool}, nil
}

func (a *Allocator) Allocate(layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	set, err := a.device.AllocateDescriptorSet(a.pool, layout)
	if err != nil {
		return 0, errors.Wrap(err, "allocate descriptor set")
	}
	return set, nil
}

// ResetPool returns every set to the pool. The pool itself survives.
func (a *Allocator) ResetPool() error {
	return errors.Wrap(a.device.ResetDescriptorPool(a.pool), "reset descriptor pool")
}

func (a *Allocator) Destroy() {
	a.device.DestroyDescriptorPool(a.pool)
	a.pool = 0
}
