package vkng

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

type imageEntry struct {
	image  core1_0.Image
	format core1_0.Format
	mips   int
}

type viewEntry struct {
	view   core1_0.ImageView
	format core1_0.Format
}

type bufferEntry struct {
	buffer core1_0.Buffer
	usage  core1_0.BufferUsageFlags
}

type setEntry struct {
	set  core1_0.DescriptorSet
	pool uint64
}

type swapchainEntry struct {
	swapchain khr_swapchain.Swapchain
	images    []gfx.Image
}

// Device implements gfx.Device and gfx.Queue for a single graphics queue.
type Device struct {
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	device12       core1_2.Device
	queue          core1_0.Queue
	queueFamily    int
	swapchainExt   khr_swapchain.Extension

	handles         uint64
	fences          registry[core1_0.Fence]
	semaphores      registry[core1_0.Semaphore]
	commandPools    registry[core1_0.CommandPool]
	images          registry[imageEntry]
	views           registry[viewEntry]
	samplers        registry[core1_0.Sampler]
	buffers         registry[bufferEntry]
	setLayouts      registry[core1_0.DescriptorSetLayout]
	descriptorPools registry[core1_0.DescriptorPool]
	descriptorSets  registry[setEntry]
	shaderModules   registry[core1_0.ShaderModule]
	pipelineLayouts registry[core1_0.PipelineLayout]
	pipelines       registry[core1_0.Pipeline]
	swapchains      registry[swapchainEntry]
	passes          *renderPassCache
}

var (
	_ gfx.Device = (*Device)(nil)
	_ gfx.Queue  = (*Device)(nil)
)

func newDevice(physicalDevice core1_0.PhysicalDevice, device core1_0.Device, queueFamily int) (*Device, error) {
	d := &Device{
		physicalDevice: physicalDevice,
		device:         device,
		device12:       core1_2.PromoteDevice(device),
		queue:          device.GetQueue(queueFamily, 0),
		queueFamily:    queueFamily,
		swapchainExt:   khr_swapchain.CreateExtensionFromDevice(device),
	}
	if d.device12 == nil {
		return nil, errors.New("device does not expose Vulkan 1.2")
	}
	d.fences = newRegistry[core1_0.Fence](&d.handles)
	d.semaphores = newRegistry[core1_0.Semaphore](&d.handles)
	d.commandPools = newRegistry[core1_0.CommandPool](&d.handles)
	d.images = newRegistry[imageEntry](&d.handles)
	d.views = newRegistry[viewEntry](&d.handles)
	d.samplers = newRegistry[core1_0.Sampler](&d.handles)
	d.buffers = newRegistry[bufferEntry](&d.handles)
	d.setLayouts = newRegistry[core1_0.DescriptorSetLayout](&d.handles)
	d.descriptorPools = newRegistry[core1_0.DescriptorPool](&d.handles)
	d.descriptorSets = newRegistry[setEntry](&d.handles)
	d.shaderModules = newRegistry[core1_0.ShaderModule](&d.handles)
	d.pipelineLayouts = newRegistry[core1_0.PipelineLayout](&d.handles)
	d.pipelines = newRegistry[core1_0.Pipeline](&d.handles)
	d.swapchains = newRegistry[swapchainEntry](&d.handles)
	d.passes = newRenderPassCache(d)
	return d, nil
}

// destroy releases the render passes and framebuffers created on demand by
// BeginRendering and pipeline creation. Everything else belongs to the caller.
func (d *Device) destroy() {
	d.passes.destroy()
	leaked := d.fences.len() + d.semaphores.len() + d.commandPools.len() + d.views.len() +
		d.samplers.len() + d.setLayouts.len() + d.descriptorPools.len() + d.shaderModules.len() +
		d.pipelineLayouts.len() + d.pipelines.len() + d.swapchains.len() + d.buffers.len()
	if leaked > 0 {
		logger.Warn("device destroyed with live objects", "count", leaked)
	}
}

func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	info := core1_0.FenceCreateInfo{}
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	fence, _, err := d.device.CreateFence(nil, info)
	if err != nil {
		return 0, errors.Wrap(err, "create fence")
	}
	return gfx.Fence(d.fences.add(fence)), nil
}

func (d *Device) DestroyFence(fence gfx.Fence) {
	if f, ok := d.fences.remove(uint64(fence)); ok {
		f.Destroy(nil)
	}
}

func (d *Device) WaitForFence(fence gfx.Fence, timeout time.Duration) error {
	f, ok := d.fences.get(uint64(fence))
	if !ok {
		return errors.Newf("unknown fence %d", fence)
	}
	res, err := f.Wait(timeout)
	return check(res, err, "wait for fence")
}

func (d *Device) ResetFence(fence gfx.Fence) error {
	f, ok := d.fences.get(uint64(fence))
	if !ok {
		return errors.Newf("unknown fence %d", fence)
	}
	res, err := d.device.ResetFences([]core1_0.Fence{f})
	return check(res, err, "reset fence")
}

func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	semaphore, _, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, errors.Wrap(err, "create semaphore")
	}
	return gfx.Semaphore(d.semaphores.add(semaphore)), nil
}

func (d *Device) DestroySemaphore(semaphore gfx.Semaphore) {
	if s, ok := d.semaphores.remove(uint64(semaphore)); ok {
		s.Destroy(nil)
	}
}

func (d *Device) CreateCommandPool(queueFamily uint32) (gfx.CommandPool, error) {
	pool, _, err := d.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: int(queueFamily),
	})
	if err != nil {
		return 0, errors.Wrap(err, "create command pool")
	}
	return gfx.CommandPool(d.commandPools.add(pool)), nil
}

func (d *Device) DestroyCommandPool(pool gfx.CommandPool) {
	if p, ok := d.commandPools.remove(uint64(pool)); ok {
		p.Destroy(nil)
	}
}

func (d *Device) AllocateCommandBuffer(pool gfx.CommandPool) (gfx.CommandBuffer, error) {
	p, ok := d.commandPools.get(uint64(pool))
	if !ok {
		return nil, errors.Newf("unknown command pool %d", pool)
	}
	buffers, _, err := d.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}
	return &CommandBuffer{device: d, buffer: buffers[0]}, nil
}

func (d *Device) CreateImageView(image gfx.Image, f gfx.Format, a gfx.ImageAspectFlags) (gfx.ImageView, error) {
	entry, ok := d.images.get(uint64(image))
	if !ok {
		return 0, errors.Newf("unknown image %d", image)
	}
	view, _, err := d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		ViewType: core1_0.ImageViewType2D,
		Image:    entry.image,
		Format:   format(f),
		Components: core1_0.ComponentMapping{
			R: core1_0.ComponentSwizzleIdentity,
			G: core1_0.ComponentSwizzleIdentity,
			B: core1_0.ComponentSwizzleIdentity,
			A: core1_0.ComponentSwizzleIdentity,
		},
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect(a),
			BaseMipLevel:   0,
			LevelCount:     entry.mips,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return 0, errors.Wrap(err, "create image view")
	}
	return gfx.ImageView(d.views.add(viewEntry{view: view, format: format(f)})), nil
}

// DestroyImageView also drops any cached framebuffer that referenced the view.
func (d *Device) DestroyImageView(view gfx.ImageView) {
	if v, ok := d.views.remove(uint64(view)); ok {
		d.passes.evictView(uint64(view))
		v.view.Destroy(nil)
	}
}

func (d *Device) CreateSampler(f gfx.Filter) (gfx.Sampler, error) {
	sampler, _, err := d.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    filter(f),
		MinFilter:    filter(f),
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,
		BorderColor:  core1_0.BorderColorIntOpaqueBlack,
		MipmapMode:   core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		return 0, errors.Wrap(err, "create sampler")
	}
	return gfx.Sampler(d.samplers.add(sampler)), nil
}

func (d *Device) DestroySampler(sampler gfx.Sampler) {
	if s, ok := d.samplers.remove(uint64(sampler)); ok {
		s.Destroy(nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	info := core1_0.DescriptorSetLayoutCreateInfo{}
	for _, b := range bindings {
		info.Bindings = append(info.Bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         int(b.Binding),
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: int(b.Count),
			StageFlags:      shaderStages(b.Stages),
		})
	}
	layout, _, err := d.device.CreateDescriptorSetLayout(nil, info)
	if err != nil {
		return 0, errors.Wrap(err, "create descriptor set layout")
	}
	return gfx.DescriptorSetLayout(d.setLayouts.add(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gfx.DescriptorSetLayout) {
	if l, ok := d.setLayouts.remove(uint64(layout)); ok {
		l.Destroy(nil)
	}
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gfx.PoolSize) (gfx.DescriptorPool, error) {
	info := core1_0.DescriptorPoolCreateInfo{MaxSets: int(maxSets)}
	for _, s := range sizes {
		info.PoolSizes = append(info.PoolSizes, core1_0.DescriptorPoolSize{
			Type:            descriptorType(s.Type),
			DescriptorCount: int(s.Count),
		})
	}
	pool, _, err := d.device.CreateDescriptorPool(nil, info)
	if err != nil {
		return 0, errors.Wrap(err, "create descriptor pool")
	}
	return gfx.DescriptorPool(d.descriptorPools.add(pool)), nil
}

func (d *Device) ResetDescriptorPool(pool gfx.DescriptorPool) error {
	p, ok := d.descriptorPools.get(uint64(pool))
	if !ok {
		return errors.Newf("unknown descriptor pool %d", pool)
	}
	res, err := p.Reset(0)
	d.forgetSets(uint64(pool))
	return check(res, err, "reset descriptor pool")
}

func (d *Device) DestroyDescriptorPool(pool gfx.DescriptorPool) {
	if p, ok := d.descriptorPools.remove(uint64(pool)); ok {
		d.forgetSets(uint64(pool))
		p.Destroy(nil)
	}
}

// forgetSets drops the handles of every set allocated from pool. Sets are
// freed implicitly by a pool reset or destroy.
func (d *Device) forgetSets(pool uint64) {
	for h, set := range d.descriptorSets.items {
		if set.pool == pool {
			delete(d.descriptorSets.items, h)
		}
	}
}

func (d *Device) AllocateDescriptorSet(pool gfx.DescriptorPool, layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	p, ok := d.descriptorPools.get(uint64(pool))
	if !ok {
		return 0, errors.Newf("unknown descriptor pool %d", pool)
	}
	l, ok := d.setLayouts.get(uint64(layout))
	if !ok {
		return 0, errors.Newf("unknown descriptor set layout %d", layout)
	}
	sets, res, err := d.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p,
		SetLayouts:     []core1_0.DescriptorSetLayout{l},
	})
	if err := check(res, err, "allocate descriptor set"); err != nil {
		return 0, err
	}
	return gfx.DescriptorSet(d.descriptorSets.add(setEntry{set: sets[0], pool: uint64(pool)})), nil
}

func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	var out []core1_0.WriteDescriptorSet
	for _, w := range writes {
		set, ok := d.descriptorSets.get(uint64(w.Set))
		if !ok {
			logger.Error("descriptor write to unknown set", "set", w.Set)
			continue
		}
		write := core1_0.WriteDescriptorSet{
			DstSet:         set.set,
			DstBinding:     int(w.Binding),
			DescriptorType: descriptorType(w.Type),
		}
		for _, img := range w.Images {
			info := core1_0.DescriptorImageInfo{ImageLayout: layout(img.Layout)}
			if v, ok := d.views.get(uint64(img.View)); ok {
				info.ImageView = v.view
			}
			if s, ok := d.samplers.get(uint64(img.Sampler)); ok {
				info.Sampler = s
			}
			write.ImageInfo = append(write.ImageInfo, info)
		}
		for _, buf := range w.Buffers {
			b, ok := d.buffers.get(uint64(buf.Buffer))
			if !ok {
				logger.Error("descriptor write of unknown buffer", "buffer", buf.Buffer)
				continue
			}
			write.BufferInfo = append(write.BufferInfo, core1_0.DescriptorBufferInfo{
				Buffer: b.buffer,
				Offset: int(buf.Offset),
				Range:  int(buf.Size),
			})
		}
		out = append(out, write)
	}
	if err := d.device.UpdateDescriptorSets(out, nil); err != nil {
		logger.Error("update descriptor sets", "err", err)
	}
}

func (d *Device) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	module, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: code})
	if err != nil {
		return 0, errors.Wrap(err, "create shader module")
	}
	return gfx.ShaderModule(d.shaderModules.add(module)), nil
}

func (d *Device) DestroyShaderModule(module gfx.ShaderModule) {
	if m, ok := d.shaderModules.remove(uint64(module)); ok {
		m.Destroy(nil)
	}
}

func (d *Device) CreatePipelineLayout(setLayouts []gfx.DescriptorSetLayout, pushConstants []gfx.PushConstantRange) (gfx.PipelineLayout, error) {
	info := core1_0.PipelineLayoutCreateInfo{}
	for _, h := range setLayouts {
		l, ok := d.setLayouts.get(uint64(h))
		if !ok {
			return 0, errors.Newf("unknown descriptor set layout %d", h)
		}
		info.SetLayouts = append(info.SetLayouts, l)
	}
	for _, r := range pushConstants {
		info.PushConstantRanges = append(info.PushConstantRanges, core1_0.PushConstantRange{
			StageFlags: shaderStages(r.Stages),
			Offset:     int(r.Offset),
			Size:       int(r.Size),
		})
	}
	layout, _, err := d.device.CreatePipelineLayout(nil, info)
	if err != nil {
		return 0, errors.Wrap(err, "create pipeline layout")
	}
	return gfx.PipelineLayout(d.pipelineLayouts.add(layout)), nil
}

func (d *Device) DestroyPipelineLayout(layout gfx.PipelineLayout) {
	if l, ok := d.pipelineLayouts.remove(uint64(layout)); ok {
		l.Destroy(nil)
	}
}

func (d *Device) shaderStage(stage gfx.ShaderStage) (core1_0.PipelineShaderStageCreateInfo, error) {
	module, ok := d.shaderModules.get(uint64(stage.Module))
	if !ok {
		return core1_0.PipelineShaderStageCreateInfo{}, errors.Newf("unknown shader module %d", stage.Module)
	}
	entry := stage.Entry
	if entry == "" {
		entry = "main"
	}
	return core1_0.PipelineShaderStageCreateInfo{
		Stage:  shaderStages(stage.Stage),
		Module: module,
		Name:   entry,
	}, nil
}

func (d *Device) CreateComputePipeline(info gfx.ComputePipelineInfo) (gfx.Pipeline, error) {
	layout, ok := d.pipelineLayouts.get(uint64(info.Layout))
	if !ok {
		return 0, errors.Newf("unknown pipeline layout %d", info.Layout)
	}
	stage, err := d.shaderStage(info.Stage)
	if err != nil {
		return 0, err
	}
	pipelines, _, err := d.device.CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{{
		Stage:             stage,
		Layout:            layout,
		BasePipelineIndex: -1,
	}})
	if err != nil {
		return 0, errors.Wrap(err, "create compute pipeline")
	}
	return gfx.Pipeline(d.pipelines.add(pipelines[0])), nil
}

// CreateGraphicsPipeline builds against a render pass compatible with the
// attachments BeginRendering will later use for the same formats.
func (d *Device) CreateGraphicsPipeline(info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	layout, ok := d.pipelineLayouts.get(uint64(info.Layout))
	if !ok {
		return 0, errors.Newf("unknown pipeline layout %d", info.Layout)
	}
	var stages []core1_0.PipelineShaderStageCreateInfo
	for _, s := range info.Stages {
		stage, err := d.shaderStage(s)
		if err != nil {
			return 0, err
		}
		stages = append(stages, stage)
	}

	key := passKey{}
	if info.ColorFormat != gfx.FormatUndefined {
		key.color = attachmentKey{
			format: format(info.ColorFormat),
			layout: core1_0.ImageLayoutColorAttachmentOptimal,
			load:   core1_0.AttachmentLoadOpLoad,
		}
	}
	if info.DepthFormat != gfx.FormatUndefined {
		key.depth = attachmentKey{
			format: format(info.DepthFormat),
			layout: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			load:   core1_0.AttachmentLoadOpLoad,
		}
	}
	pass, err := d.passes.renderPass(key)
	if err != nil {
		return 0, err
	}

	var blend []core1_0.PipelineColorBlendAttachmentState
	if info.ColorFormat != gfx.FormatUndefined {
		blend = append(blend, blendAttachment(info.Blend))
	}

	pipelines, _, err := d.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{{
		Stages:           stages,
		VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{},
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology: core1_0.PrimitiveTopologyTriangleList,
		},
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{MaxDepth: 1}},
			Scissors:  []core1_0.Rect2D{{}},
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			PolygonMode: polygonMode(info.PolygonMode),
			CullMode:    cullMode(info.CullMode),
			FrontFace:   frontFace(info.FrontFace),
			LineWidth:   1.0,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  info.DepthTest,
			DepthWriteEnable: info.DepthWrite,
			DepthCompareOp:   compareOp(info.DepthCompare),
		},
		ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOp:     core1_0.LogicOpCopy,
			Attachments: blend,
		},
		DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
		},
		Layout:            layout,
		RenderPass:        pass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}})
	if err != nil {
		return 0, errors.Wrap(err, "create graphics pipeline")
	}
	return gfx.Pipeline(d.pipelines.add(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(pipeline gfx.Pipeline) {
	if p, ok := d.pipelines.remove(uint64(pipeline)); ok {
		p.Destroy(nil)
	}
}

func (d *Device) BufferAddress(buffer gfx.Buffer) (uint64, error) {
	b, ok := d.buffers.get(uint64(buffer))
	if !ok {
		return 0, errors.Newf("unknown buffer %d", buffer)
	}
	addr, err := d.device12.GetBufferDeviceAddress(core1_2.BufferDeviceAddressInfo{Buffer: b.buffer})
	if err != nil {
		return 0, errors.Wrap(err, "buffer device address")
	}
	return addr, nil
}

func (d *Device) WaitIdle() error {
	_, err := d.device.WaitIdle()
	return errors.Wrap(err, "device wait idle")
}

func (d *Device) Family() uint32 {
	return uint32(d.queueFamily)
}

func (d *Device) Submit(fence gfx.Fence, infos ...gfx.SubmitInfo) error {
	var f core1_0.Fence
	if fence != 0 {
		var ok bool
		if f, ok = d.fences.get(uint64(fence)); !ok {
			return errors.Newf("unknown fence %d", fence)
		}
	}

	var submits []core1_0.SubmitInfo
	for _, info := range infos {
		submit := core1_0.SubmitInfo{}
		for _, cb := range info.CommandBuffers {
			buffer, ok := cb.(*CommandBuffer)
			if !ok {
				return errors.Newf("command buffer %T was not allocated by this device", cb)
			}
			submit.CommandBuffers = append(submit.CommandBuffers, buffer.buffer)
		}
		for _, w := range info.Wait {
			s, ok := d.semaphores.get(uint64(w.Semaphore))
			if !ok {
				return errors.Newf("unknown semaphore %d", w.Semaphore)
			}
			submit.WaitSemaphores = append(submit.WaitSemaphores, s)
			submit.WaitDstStageMask = append(submit.WaitDstStageMask, pipelineStages(w.Stage))
		}
		for _, sig := range info.Signal {
			s, ok := d.semaphores.get(uint64(sig.Semaphore))
			if !ok {
				return errors.Newf("unknown semaphore %d", sig.Semaphore)
			}
			submit.SignalSemaphores = append(submit.SignalSemaphores, s)
		}
		submits = append(submits, submit)
	}

	res, err := d.queue.Submit(f, submits)
	return check(res, err, "queue submit")
}

func (d *Device) Present(swapchain gfx.Swapchain, imageIndex uint32, wait ...gfx.Semaphore) error {
	sc, ok := d.swapchains.get(uint64(swapchain))
	if !ok {
		return errors.Newf("unknown swapchain %d", swapchain)
	}
	info := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{sc.swapchain},
		ImageIndices: []int{int(imageIndex)},
	}
	for _, h := range wait {
		s, ok := d.semaphores.get(uint64(h))
		if !ok {
			return errors.Newf("unknown semaphore %d", h)
		}
		info.WaitSemaphores = append(info.WaitSemaphores, s)
	}
	res, err := d.swapchainExt.QueuePresent(d.queue, info)
	return check(res, err, "queue present")
}
