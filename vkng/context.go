// Package vkng implements the gfx interfaces on top of vkngwrapper.
package vkng

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/internal/logging"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v2/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v2"
)

var logger = logging.Discard()

func SetLogger(l *slog.Logger) {
	logger = l
}

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	AppName    string
	Validation bool
}

// Context owns the instance, surface and logical device for one window.
type Context struct {
	Device    *Device
	Allocator *Allocator
	Surface   *Surface

	window         *sdl.Window
	loader         core.Loader
	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        khr_surface.Surface
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	queueFamily    int
}

// New brings up Vulkan 1.2 for window. The window must have been created
// with sdl.WINDOW_VULKAN.
func New(window *sdl.Window, opts Options) (ctx *Context, err error) {
	c := &Context{window: window}
	defer func() {
		if err != nil {
			c.Destroy()
		}
	}()

	c.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "create loader")
	}

	steps := []struct {
		name string
		fn   func(Options) error
	}{
		{"create instance", c.createInstance},
		{"setup debug messenger", c.setupDebugMessenger},
		{"create surface", c.createSurface},
		{"pick physical device", c.pickPhysicalDevice},
		{"create logical device", c.createLogicalDevice},
	}
	for _, step := range steps {
		if err := step.fn(opts); err != nil {
			return nil, errors.Wrap(err, step.name)
		}
	}

	c.Device, err = newDevice(c.physicalDevice, c.device, c.queueFamily)
	if err != nil {
		return nil, err
	}
	c.Allocator = newAllocator(c.Device)
	c.Surface = &Surface{device: c.Device, surface: c.surface, physicalDevice: c.physicalDevice}

	props, err := c.physicalDevice.Properties()
	if err == nil {
		logger.Info("vulkan device ready",
			"device", props.DriverName,
			"api", props.APIVersion.String(),
			"queue_family", c.queueFamily)
	}
	return c, nil
}

// Destroy tears down what New created except the Allocator, which belongs to
// whoever it was handed to and must already have been destroyed.
func (c *Context) Destroy() {
	c.Allocator = nil
	if c.Device != nil {
		c.Device.destroy()
		c.Device = nil
	}
	if c.device != nil {
		c.device.Destroy(nil)
		c.device = nil
	}
	if c.surface != nil {
		c.surface.Destroy(nil)
		c.surface = nil
	}
	if c.debugMessenger != nil {
		c.debugMessenger.Destroy(nil)
		c.debugMessenger = nil
	}
	if c.instance != nil {
		c.instance.Destroy(nil)
		c.instance = nil
	}
}

func (c *Context) createInstance(opts Options) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "jvk",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.window.VulkanGetInstanceExtensions()
	extensions, _, err := c.loader.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := c.loader.AvailableLayers()
		if err != nil {
			return err
		}
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return errors.Newf("validation layer %s not available", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}
		instanceOptions.Next = debugMessengerOptions()
	}

	c.instance, _, err = c.loader.CreateInstance(nil, instanceOptions)
	return err
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelDebug
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		level = slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, data.Message, "type", msgType, "id", data.MessageIDName)
	return false
}

func (c *Context) setupDebugMessenger(opts Options) error {
	if !opts.Validation {
		return nil
	}

	var err error
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(c.instance)
	c.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(c.instance, nil, debugMessengerOptions())
	return err
}

func (c *Context) createSurface(Options) error {
	surfaceLoader := khr_surface.CreateExtensionFromInstance(c.instance)

	surface, err := vkng_sdl2.CreateSurface(c.instance, surfaceLoader, c.window)
	if err != nil {
		return err
	}
	c.surface = surface
	return nil
}

// pickPhysicalDevice prefers a discrete GPU with a queue family that can both
// draw and present.
func (c *Context) pickPhysicalDevice(Options) error {
	physicalDevices, _, err := c.instance.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	bestScore := -1
	for _, device := range physicalDevices {
		family, score, err := c.rateDevice(device)
		if err != nil {
			return err
		}
		if score > bestScore {
			bestScore = score
			c.physicalDevice = device
			c.queueFamily = family
		}
	}

	if c.physicalDevice == nil {
		return errors.New("no GPU supports Vulkan 1.2 with graphics and present on one queue")
	}
	return nil
}

func (c *Context) rateDevice(device core1_0.PhysicalDevice) (family, score int, err error) {
	props, err := device.Properties()
	if err != nil {
		return 0, -1, err
	}
	if !props.APIVersion.IsAtLeast(common.Vulkan1_2) {
		return 0, -1, nil
	}

	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return 0, -1, err
	}
	for _, ext := range deviceExtensions {
		if _, ok := extensions[ext]; !ok {
			return 0, -1, nil
		}
	}

	family = -1
	for i, queueFamily := range device.QueueFamilyProperties() {
		if queueFamily.QueueFlags&core1_0.QueueGraphics == 0 {
			continue
		}
		supported, _, err := c.surface.PhysicalDeviceSurfaceSupport(device, i)
		if err != nil {
			return 0, -1, err
		}
		if supported {
			family = i
			break
		}
	}
	if family < 0 {
		return 0, -1, nil
	}

	score = 1
	if props.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU {
		score = 2
	}
	return family, score, nil
}

func (c *Context) createLogicalDevice(Options) error {
	extensionNames := append([]string{}, deviceExtensions...)

	extensions, _, err := c.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return err
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.device, _, err = c.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{{
			QueueFamilyIndex: c.queueFamily,
			QueuePriorities:  []float32{1.0},
		}},
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
		NextOptions: common.NextOptions{Next: core1_2.PhysicalDeviceVulkan12Features{
			BufferDeviceAddress: true,
		}},
	})
	return err
}
