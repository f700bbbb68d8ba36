package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

// check turns a Vulkan result into an error, mapping the codes the engine
// reacts to onto the gfx sentinels.
func check(res common.VkResult, err error, what string) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(gfx.ErrOutOfDate, what)
	case khr_swapchain.VKSuboptimal:
		return errors.Wrap(gfx.ErrSuboptimal, what)
	case core1_0.VKTimeout, core1_0.VKNotReady:
		return errors.Wrap(gfx.ErrTimeout, what)
	case core1_1.VKErrorOutOfPoolMemory:
		return errors.Wrap(gfx.ErrOutOfPoolMemory, what)
	case core1_0.VKErrorFragmentedPool:
		return errors.Wrap(gfx.ErrFragmentedPool, what)
	}
	if err != nil {
		return errors.Wrap(err, what)
	}
	return nil
}
