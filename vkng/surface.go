package vkng

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

// Surface creates swapchains for the window surface. Swapchain images are
// registered with the device so the command buffer can address them.
type Surface struct {
	device         *Device
	surface        khr_surface.Surface
	physicalDevice core1_0.PhysicalDevice
}

var _ gfx.Surface = (*Surface)(nil)

func chooseSurfaceFormat(formats []khr_surface.SurfaceFormat, want core1_0.Format) khr_surface.SurfaceFormat {
	for _, f := range formats {
		if f.Format == want && f.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return f
		}
	}
	return formats[0]
}

func choosePresentMode(modes []khr_surface.PresentMode, want khr_surface.PresentMode) khr_surface.PresentMode {
	for _, m := range modes {
		if m == want {
			return m
		}
	}
	return khr_surface.PresentModeFIFO
}

// chooseExtent uses the surface's current extent when it has one and clamps
// the requested size otherwise.
func chooseExtent(caps *khr_surface.SurfaceCapabilities, want gfx.Extent2D) core1_0.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}
	return core1_0.Extent2D{
		Width:  clamp(int(want.Width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(int(want.Height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func imageCount(caps *khr_surface.SurfaceCapabilities) int {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && caps.MaxImageCount < count {
		count = caps.MaxImageCount
	}
	return count
}

func (s *Surface) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, gfx.SwapchainDetails, error) {
	caps, _, err := s.surface.PhysicalDeviceSurfaceCapabilities(s.physicalDevice)
	if err != nil {
		return 0, gfx.SwapchainDetails{}, errors.Wrap(err, "surface capabilities")
	}
	formats, _, err := s.surface.PhysicalDeviceSurfaceFormats(s.physicalDevice)
	if err != nil {
		return 0, gfx.SwapchainDetails{}, errors.Wrap(err, "surface formats")
	}
	if len(formats) == 0 {
		return 0, gfx.SwapchainDetails{}, errors.New("surface reports no formats")
	}
	modes, _, err := s.surface.PhysicalDeviceSurfacePresentModes(s.physicalDevice)
	if err != nil {
		return 0, gfx.SwapchainDetails{}, errors.Wrap(err, "surface present modes")
	}

	surfaceFormat := chooseSurfaceFormat(formats, format(info.Format))
	extent := chooseExtent(caps, info.Extent)

	swapchain, _, err := s.device.swapchainExt.CreateSwapchain(s.device.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.surface,

		MinImageCount:    imageCount(caps),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       imageUsage(info.Usage),
		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    choosePresentMode(modes, presentMode(info.PresentMode)),
		Clipped:        true,
	})
	if err != nil {
		return 0, gfx.SwapchainDetails{}, errors.Wrap(err, "create swapchain")
	}

	images, _, err := swapchain.SwapchainImages()
	if err != nil {
		swapchain.Destroy(nil)
		return 0, gfx.SwapchainDetails{}, errors.Wrap(err, "swapchain images")
	}

	entry := swapchainEntry{swapchain: swapchain}
	for _, image := range images {
		h := s.device.images.add(imageEntry{image: image, format: surfaceFormat.Format, mips: 1})
		entry.images = append(entry.images, gfx.Image(h))
	}

	details := gfx.SwapchainDetails{
		Extent: gfx.Extent2D{Width: uint32(extent.Width), Height: uint32(extent.Height)},
		Format: formatFromVulkan(surfaceFormat.Format),
		Images: entry.images,
	}
	return gfx.Swapchain(s.device.swapchains.add(entry)), details, nil
}

// DestroySwapchain also forgets the swapchain's images, which the swapchain
// owns.
func (s *Surface) DestroySwapchain(swapchain gfx.Swapchain) {
	entry, ok := s.device.swapchains.remove(uint64(swapchain))
	if !ok {
		return
	}
	for _, image := range entry.images {
		s.device.images.remove(uint64(image))
	}
	entry.swapchain.Destroy(nil)
}

func (s *Surface) AcquireNextImage(swapchain gfx.Swapchain, signal gfx.Semaphore, timeout time.Duration) (uint32, error) {
	entry, ok := s.device.swapchains.get(uint64(swapchain))
	if !ok {
		return 0, errors.Newf("unknown swapchain %d", swapchain)
	}
	semaphore, ok := s.device.semaphores.get(uint64(signal))
	if !ok {
		return 0, errors.Newf("unknown semaphore %d", signal)
	}
	index, res, err := entry.swapchain.AcquireNextImage(timeout, semaphore, nil)
	return uint32(index), check(res, err, "acquire next image")
}
