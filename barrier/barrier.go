// Package barrier records image layout transitions and image copies.
package barrier

import "github.com/jvkengine/jvk/gfx"

// Transition moves the whole of image from one layout to another. The
// barrier waits on all prior commands, which is coarse but always correct.
func Transition(cmd gfx.CommandBuffer, image gfx.Image, from, to gfx.ImageLayout) {
	aspect := gfx.AspectColor
	if to == gfx.LayoutDepthAttachmentOptimal {
		aspect = gfx.AspectDepth
	}

	cmd.PipelineBarrier(gfx.ImageBarrier{
		Image:     image,
		Aspect:    aspect,
		OldLayout: from,
		NewLayout: to,
		SrcStage:  gfx.PipelineStageAllCommands,
		SrcAccess: gfx.AccessMemoryWrite,
		DstStage:  gfx.PipelineStageAllCommands,
		DstAccess: gfx.AccessMemoryWrite | gfx.AccessMemoryRead,
	})
}

// Blit scales the color contents of src into dst. src must be in
// TransferSrcOptimal and dst in TransferDstOptimal.
func Blit(cmd gfx.CommandBuffer, src, dst gfx.Image, srcSize, dstSize gfx.Extent2D) {
	cmd.BlitImage(src, gfx.LayoutTransferSrcOptimal, dst, gfx.LayoutTransferDstOptimal, srcSize, dstSize)
}
