package mesh

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/resource"
)

type Submitter interface {
	Submit(ctx context.Context, record func(cmd gfx.CommandBuffer)) error
}

// Uploader copies geometry into GPU local memory through a staging buffer.
type Uploader struct {
	Device    gfx.Device
	Allocator gfx.Allocator
	Submitter Submitter
}

// Upload creates a vertex buffer and an index buffer sized exactly to the
// input. The staging buffer holds the vertices at offset 0 and the indices
// right after them; it is released once the blocking copy has finished.
func (u *Uploader) Upload(ctx context.Context, indices []uint32, vertices []Vertex) (GPUBuffers, error) {
	if len(indices) == 0 || len(vertices) == 0 {
		return GPUBuffers{}, errors.Newf("mesh with %d indices and %d vertices", len(indices), len(vertices))
	}

	vertexData, err := encode(vertices)
	if err != nil {
		return GPUBuffers{}, err
	}
	indexData, err := encode(indices)
	if err != nil {
		return GPUBuffers{}, err
	}
	vertexSize := uint64(len(vertexData))
	indexSize := uint64(len(indexData))

	var out GPUBuffers
	uploaded := false
	defer func() {
		if !uploaded {
			out.Destroy(u.Allocator)
		}
	}()

	out.Vertex, err = resource.CreateBuffer(u.Allocator, vertexSize,
		gfx.BufferUsageStorage|gfx.BufferUsageTransferDst|gfx.BufferUsageShaderDeviceAddress,
		gfx.MemoryGPUOnly)
	if err != nil {
		return GPUBuffers{}, errors.Wrap(err, "vertex buffer")
	}
	out.Index, err = resource.CreateBuffer(u.Allocator, indexSize,
		gfx.BufferUsageIndex|gfx.BufferUsageTransferDst,
		gfx.MemoryGPUOnly)
	if err != nil {
		return GPUBuffers{}, errors.Wrap(err, "index buffer")
	}
	out.VertexAddress, err = u.Device.BufferAddress(out.Vertex.Buffer)
	if err != nil {
		return GPUBuffers{}, errors.Wrap(err, "vertex buffer address")
	}

	staging, err := resource.CreateBuffer(u.Allocator, vertexSize+indexSize, gfx.BufferUsageTransferSrc, gfx.MemoryCPUOnly)
	if err != nil {
		return GPUBuffers{}, errors.Wrap(err, "staging buffer")
	}
	defer staging.Destroy(u.Allocator)

	if err := staging.Write(u.Allocator, 0, vertexData); err != nil {
		return GPUBuffers{}, err
	}
	if err := staging.Write(u.Allocator, vertexSize, indexData); err != nil {
		return GPUBuffers{}, err
	}

	err = u.Submitter.Submit(ctx, func(cmd gfx.CommandBuffer) {
		cmd.CopyBuffer(staging.Buffer, out.Vertex.Buffer, gfx.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      vertexSize,
		})
		cmd.CopyBuffer(staging.Buffer, out.Index.Buffer, gfx.BufferCopy{
			SrcOffset: vertexSize,
			DstOffset: 0,
			Size:      indexSize,
		})
	})
	if err != nil {
		return GPUBuffers{}, errors.Wrap(err, "copy mesh to gpu")
	}

	uploaded = true
	return out, nil
}
