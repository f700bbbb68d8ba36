package descriptors

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

const (
	GrowthFactor   = 1.5
	MaxSetsPerPool = 4092
)

func grow(sets uint32) uint32 {
	next := uint32(float64(sets) * GrowthFactor)
	if next > MaxSetsPerPool {
		next = MaxSetsPerPool
	}
	return next
}

// GrowableAllocator hands out sets from a list of pools. An exhausted pool is
// retired to the full list and replaced by a ready one, or by a new pool
// larger than the last. ClearPools recycles everything without destroying it.
type GrowableAllocator struct {
	device      gfx.Device
	ratios      []PoolSizeRatio
	ready       []gfx.DescriptorPool
	full        []gfx.DescriptorPool
	setsPerPool uint32
}

func NewGrowableAllocator(dev gfx.Device, initialSets uint32, ratios []PoolSizeRatio) (*GrowableAllocator, error) {
	a := &GrowableAllocator{
		device: dev,
		ratios: append([]PoolSizeRatio(nil), ratios...),
	}

	pool, err := a.createPool(initialSets)
	if err != nil {
		return nil, err
	}
	a.setsPerPool = grow(initialSets)
	a.ready = append(a.ready, pool)
	return a, nil
}

func (a *GrowableAllocator) createPool(sets uint32) (gfx.DescriptorPool, error) {
	pool, err := a.device.CreateDescriptorPool(sets, poolSizes(sets, a.ratios))
	if err != nil {
		return 0, errors.Wrapf(err, "create descriptor pool for %d sets", sets)
	}
	return pool, nil
}

func (a *GrowableAllocator) takePool() (gfx.DescriptorPool, error) {
	if n := len(a.ready); n > 0 {
		pool := a.ready[n-1]
		a.ready = a.ready[:n-1]
		return pool, nil
	}

	pool, err := a.createPool(a.setsPerPool)
	if err != nil {
		return 0, err
	}
	logger.Debug("descriptor pool added", "sets", a.setsPerPool, "pools", a.PoolCount()+1)
	a.setsPerPool = grow(a.setsPerPool)
	return pool, nil
}

func exhausted(err error) bool {
	return errors.Is(err, gfx.ErrOutOfPoolMemory) || errors.Is(err, gfx.ErrFragmentedPool)
}

func (a *GrowableAllocator) Allocate(layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	pool, err := a.takePool()
	if err != nil {
		return 0, err
	}

	set, err := a.device.AllocateDescriptorSet(pool, layout)
	if exhausted(err) {
		a.full = append(a.full, pool)

		pool, err = a.takePool()
		if err != nil {
			return 0, err
		}
		set, err = a.device.AllocateDescriptorSet(pool, layout)
	}
	if err != nil {
		if exhausted(err) {
			a.full = append(a.full, pool)
		} else {
			a.ready = append(a.ready, pool)
		}
		return 0, errors.Wrap(err, "allocate descriptor set")
	}

	a.ready = append(a.ready, pool)
	return set, nil
}

// ClearPools resets every pool and makes all of them ready again.
func (a *GrowableAllocator) ClearPools() error {
	var errs error
	for _, pool := range a.ready {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	for _, pool := range a.full {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		a.ready = append(a.ready, pool)
	}
	a.full = a.full[:0]
	return errors.Wrap(errs, "clear descriptor pools")
}

func (a *GrowableAllocator) DestroyPools() {
	for _, pool := range a.ready {
		a.device.DestroyDescriptorPool(pool)
	}
	for _, pool := range a.full {
		a.device.DestroyDescriptorPool(pool)
	}
	a.ready = nil
	a.full = nil
}

func (a *GrowableAllocator) PoolCount() int  { return len(a.ready) + len(a.full) }
func (a *GrowableAllocator) ReadyCount() int { return len(a.ready) }
func (a *GrowableAllocator) FullCount() int  { return len(a.full) }

// NextPoolSets is the capacity the next newly created pool will have.
func (a *GrowableAllocator) NextPoolSets() uint32 { return a.setsPerPool }
