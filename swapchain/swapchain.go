// Package swapchain owns the presentable images and their views. A
// swapchain is never modified: on resize it is destroyed and built again.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

type Options struct {
	Format      gfx.Format
	PresentMode gfx.PresentMode
	Usage       gfx.ImageUsageFlags
}

func DefaultOptions() Options {
	return Options{
		Format:      gfx.FormatB8G8R8A8Unorm,
		PresentMode: gfx.PresentModeFIFO,
		Usage:       gfx.ImageUsageColorAttachment | gfx.ImageUsageTransferDst,
	}
}

type Swapchain struct {
	Handle gfx.Swapchain
	Format gfx.Format
	Extent gfx.Extent2D
	Images []gfx.Image
	Views  []gfx.ImageView
}

func New(dev gfx.Device, surface gfx.Surface, extent gfx.Extent2D, opts Options) (*Swapchain, error) {
	if extent.Width == 0 || extent.Height == 0 {
		return nil, errors.Newf("cannot create a %dx%d swapchain", extent.Width, extent.Height)
	}

	handle, details, err := surface.CreateSwapchain(gfx.SwapchainCreateInfo{
		Extent:      extent,
		Format:      opts.Format,
		PresentMode: opts.PresentMode,
		Usage:       opts.Usage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	sc := &Swapchain{
		Handle: handle,
		Format: details.Format,
		Extent: details.Extent,
		Images: details.Images,
	}
	for _, image := range details.Images {
		view, err := dev.CreateImageView(image, details.Format, gfx.AspectColor)
		if err != nil {
			sc.Destroy(dev, surface)
			return nil, errors.Wrap(err, "create swapchain image view")
		}
		sc.Views = append(sc.Views, view)
	}
	return sc, nil
}

func (s *Swapchain) Destroy(dev gfx.Device, surface gfx.Surface) {
	for _, view := range s.Views {
		dev.DestroyImageView(view)
	}
	surface.DestroySwapchain(s.Handle)
	s.Views = nil
	s.Images = nil
	s.Handle = 0
}
