package vkng

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/khr_buffer_device_address"
)

type allocation struct {
	memory core1_0.DeviceMemory
	size   int
	mapped []byte
	maps   int
}

// Allocator gives every buffer and image its own device memory allocation.
type Allocator struct {
	device      *Device
	memoryTypes []core1_0.MemoryType
	allocations registry[*allocation]
}

var _ gfx.Allocator = (*Allocator)(nil)

func newAllocator(d *Device) *Allocator {
	return &Allocator{
		device:      d,
		memoryTypes: d.physicalDevice.MemoryProperties().MemoryTypes,
		allocations: newRegistry[*allocation](&d.handles),
	}
}

// memoryFlags returns the required and preferred property flags for a usage
// class.
func memoryFlags(usage gfx.MemoryUsage) (required, preferred core1_0.MemoryPropertyFlags) {
	switch usage {
	case gfx.MemoryCPUOnly:
		return core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, 0
	case gfx.MemoryCPUToGPU:
		return core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, core1_0.MemoryPropertyDeviceLocal
	}
	return core1_0.MemoryPropertyDeviceLocal, 0
}

func findMemoryType(types []core1_0.MemoryType, typeFilter uint32, required, preferred core1_0.MemoryPropertyFlags) (int, error) {
	fallback := -1
	for i, memoryType := range types {
		typeBit := uint32(1 << i)
		if typeFilter&typeBit == 0 || memoryType.PropertyFlags&required != required {
			continue
		}
		if memoryType.PropertyFlags&preferred == preferred {
			return i, nil
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback < 0 {
		return 0, errors.Newf("no memory type matches filter %#x with properties %s", typeFilter, required)
	}
	return fallback, nil
}

func (a *Allocator) allocate(reqs *core1_0.MemoryRequirements, usage gfx.MemoryUsage, deviceAddress bool) (core1_0.DeviceMemory, error) {
	required, preferred := memoryFlags(usage)
	memoryTypeIndex, err := findMemoryType(a.memoryTypes, reqs.MemoryTypeBits, required, preferred)
	if err != nil {
		return nil, err
	}

	allocInfo := core1_0.MemoryAllocateInfo{
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	}
	if deviceAddress {
		allocInfo.Next = core1_1.MemoryAllocateFlagsInfo{
			Flags: khr_buffer_device_address.MemoryAllocateDeviceAddress,
		}
	}

	memory, _, err := a.device.device.AllocateMemory(nil, allocInfo)
	if err != nil {
		return nil, errors.Wrap(err, "allocate memory")
	}
	return memory, nil
}

func (a *Allocator) CreateBuffer(size uint64, usage gfx.BufferUsageFlags, memory gfx.MemoryUsage) (gfx.Buffer, gfx.Allocation, error) {
	vkUsage := bufferUsage(usage)
	buffer, _, err := a.device.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        int(size),
		Usage:       vkUsage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return 0, 0, errors.Wrap(err, "create buffer")
	}

	reqs := buffer.MemoryRequirements()
	mem, err := a.allocate(reqs, memory, usage&gfx.BufferUsageShaderDeviceAddress != 0)
	if err != nil {
		buffer.Destroy(nil)
		return 0, 0, err
	}
	if _, err := buffer.BindBufferMemory(mem, 0); err != nil {
		buffer.Destroy(nil)
		mem.Free(nil)
		return 0, 0, errors.Wrap(err, "bind buffer memory")
	}

	b := a.device.buffers.add(bufferEntry{buffer: buffer, usage: vkUsage})
	alloc := a.allocations.add(&allocation{memory: mem, size: reqs.Size})
	return gfx.Buffer(b), gfx.Allocation(alloc), nil
}

func (a *Allocator) DestroyBuffer(buffer gfx.Buffer, alloc gfx.Allocation) {
	if b, ok := a.device.buffers.remove(uint64(buffer)); ok {
		b.buffer.Destroy(nil)
	}
	a.free(alloc)
}

func (a *Allocator) CreateImage(info gfx.ImageCreateInfo, memory gfx.MemoryUsage) (gfx.Image, gfx.Allocation, error) {
	mips := int(info.MipLevels)
	if mips == 0 {
		mips = 1
	}
	image, _, err := a.device.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  int(info.Extent.Width),
			Height: int(info.Extent.Height),
			Depth:  int(info.Extent.Depth),
		},
		MipLevels:     mips,
		ArrayLayers:   1,
		Format:        format(info.Format),
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         imageUsage(info.Usage),
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return 0, 0, errors.Wrap(err, "create image")
	}

	reqs := image.MemoryRequirements()
	mem, err := a.allocate(reqs, memory, false)
	if err != nil {
		image.Destroy(nil)
		return 0, 0, err
	}
	if _, err := image.BindImageMemory(mem, 0); err != nil {
		image.Destroy(nil)
		mem.Free(nil)
		return 0, 0, errors.Wrap(err, "bind image memory")
	}

	img := a.device.images.add(imageEntry{image: image, format: format(info.Format), mips: mips})
	alloc := a.allocations.add(&allocation{memory: mem, size: reqs.Size})
	return gfx.Image(img), gfx.Allocation(alloc), nil
}

func (a *Allocator) DestroyImage(image gfx.Image, alloc gfx.Allocation) {
	if img, ok := a.device.images.remove(uint64(image)); ok {
		img.image.Destroy(nil)
	}
	a.free(alloc)
}

func (a *Allocator) free(h gfx.Allocation) {
	alloc, ok := a.allocations.remove(uint64(h))
	if !ok {
		return
	}
	if alloc.maps > 0 {
		alloc.memory.Unmap()
	}
	alloc.memory.Free(nil)
}

// Map returns the whole allocation as a byte slice. Calls nest; the memory
// stays mapped until the matching number of Unmap calls.
func (a *Allocator) Map(h gfx.Allocation) ([]byte, error) {
	alloc, ok := a.allocations.get(uint64(h))
	if !ok {
		return nil, errors.Newf("unknown allocation %d", h)
	}
	if alloc.maps == 0 {
		ptr, _, err := alloc.memory.Map(0, alloc.size, 0)
		if err != nil {
			return nil, errors.Wrap(err, "map memory")
		}
		alloc.mapped = unsafe.Slice((*byte)(ptr), alloc.size)
	}
	alloc.maps++
	return alloc.mapped, nil
}

func (a *Allocator) Unmap(h gfx.Allocation) {
	alloc, ok := a.allocations.get(uint64(h))
	if !ok || alloc.maps == 0 {
		return
	}
	alloc.maps--
	if alloc.maps == 0 {
		alloc.memory.Unmap()
		alloc.mapped = nil
	}
}

// Destroy frees whatever allocations are still outstanding.
func (a *Allocator) Destroy() {
	if n := a.allocations.len(); n > 0 {
		var bytes int
		for _, alloc := range a.allocations.items {
			bytes += alloc.size
		}
		logger.Warn("allocator destroyed with live allocations", "count", n, "bytes", bytes)
	}
	for h := range a.allocations.items {
		a.free(gfx.Allocation(h))
	}
}
