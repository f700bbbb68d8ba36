// Package resource wraps native buffers and images together with the memory
// backing them.
package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

type AllocatedBuffer struct {
	Buffer     gfx.Buffer
	Allocation gfx.Allocation
	Size       uint64
	Usage      gfx.BufferUsageFlags
}

func CreateBuffer(alloc gfx.Allocator, size uint64, usage gfx.BufferUsageFlags, memory gfx.MemoryUsage) (AllocatedBuffer, error) {
	if size == 0 {
		return AllocatedBuffer{}, errors.New("cannot create an empty buffer")
	}
	buffer, allocation, err := alloc.CreateBuffer(size, usage, memory)
	if err != nil {
		return AllocatedBuffer{}, errors.Wrapf(err, "create buffer of %d bytes", size)
	}
	return AllocatedBuffer{Buffer: buffer, Allocation: allocation, Size: size, Usage: usage}, nil
}

// Write copies data into the buffer at offset. The buffer must live in host
// visible memory.
func (b AllocatedBuffer) Write(alloc gfx.Allocator, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return errors.Newf("write of %d bytes at %d overflows buffer of %d", len(data), offset, b.Size)
	}
	mapped, err := alloc.Map(b.Allocation)
	if err != nil {
		return errors.Wrap(err, "map buffer")
	}
	defer alloc.Unmap(b.Allocation)

	copy(mapped[offset:], data)
	return nil
}

func (b AllocatedBuffer) Destroy(alloc gfx.Allocator) {
	alloc.DestroyBuffer(b.Buffer, b.Allocation)
}

type AllocatedImage struct {
	Image      gfx.Image
	View       gfx.ImageView
	Allocation gfx.Allocation
	Extent     gfx.Extent3D
	Format     gfx.Format
	Aspect     gfx.ImageAspectFlags
}

// AspectFor derives the view aspect from how an image will be used.
func AspectFor(usage gfx.ImageUsageFlags) gfx.ImageAspectFlags {
	if usage&gfx.ImageUsageDepthStencilAttachment != 0 {
		return gfx.AspectDepth
	}
	return gfx.AspectColor
}

func CreateImage(dev gfx.Device, alloc gfx.Allocator, format gfx.Format, usage gfx.ImageUsageFlags, extent gfx.Extent3D) (AllocatedImage, error) {
	image, allocation, err := alloc.CreateImage(gfx.ImageCreateInfo{
		Format:    format,
		Usage:     usage,
		Extent:    extent,
		MipLevels: 1,
	}, gfx.MemoryGPUOnly)
	if err != nil {
		return AllocatedImage{}, errors.Wrapf(err, "create %dx%d image", extent.Width, extent.Height)
	}

	aspect := AspectFor(usage)
	view, err := dev.CreateImageView(image, format, aspect)
	if err != nil {
		alloc.DestroyImage(image, allocation)
		return AllocatedImage{}, errors.Wrap(err, "create image view")
	}

	return AllocatedImage{
		Image:      image,
		View:       view,
		Allocation: allocation,
		Extent:     extent,
		Format:     format,
		Aspect:     aspect,
	}, nil
}

func (i AllocatedImage) Destroy(dev gfx.Device, alloc gfx.Allocator) {
	dev.DestroyImageView(i.View)
	alloc.DestroyImage(i.Image, i.Allocation)
}
