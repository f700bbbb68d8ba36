// Package gfxtest provides an in-memory GPU that implements every gfx
// interface and records what it was asked to do.
package gfxtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

type Call struct {
	Op   string
	Args []any
}

type fenceState struct {
	signaled bool
	waits    int
	signals  int
}

type poolState struct {
	maxSets   uint32
	sizes     []gfx.PoolSize
	allocated uint32
	resets    int
}

type bufferState struct {
	size   uint64
	usage  gfx.BufferUsageFlags
	memory gfx.MemoryUsage
	data   []byte
}

type imageState struct {
	info   gfx.ImageCreateInfo
	memory gfx.MemoryUsage
}

// GPU is a fake device, queue, allocator and surface in one. GPU work
// completes the moment it is submitted, so fences signal on Submit.
type GPU struct {
	Calls []Call
	// Errors collects misuse the fake detected, such as destroying a handle
	// twice or submitting a buffer that is still recording.
	Errors []string

	// AcquireErrs and PresentErrs are consumed one per call; a nil entry or an
	// empty list means success.
	AcquireErrs []error
	PresentErrs []error
	// BeginErrs is consumed one per command buffer Begin the same way.
	BeginErrs []error
	// FailBufferCreate makes the n-th CreateBuffer call (1-based) fail.
	FailBufferCreate int
	SwapchainImages  int
	QueueFamily      uint32

	next        uint64
	live        map[uint64]string
	fences      map[gfx.Fence]*fenceState
	pools       map[gfx.DescriptorPool]*poolState
	poolOrder   []gfx.DescriptorPool
	buffers     map[gfx.Buffer]*bufferState
	allocations map[gfx.Allocation]uint64
	images      map[gfx.Image]*imageState
	swapchains  map[gfx.Swapchain][]gfx.Image
	acquireNext map[gfx.Swapchain]uint32
	bufferCalls int
	cmds        []*Cmd
	writes      []gfx.DescriptorWrite
}

var (
	_ gfx.Device    = (*GPU)(nil)
	_ gfx.Queue     = (*GPU)(nil)
	_ gfx.Allocator = (*GPU)(nil)
	_ gfx.Surface   = (*GPU)(nil)
)

func New() *GPU {
	return &GPU{
		SwapchainImages: 3,
		live:            make(map[uint64]string),
		fences:          make(map[gfx.Fence]*fenceState),
		pools:           make(map[gfx.DescriptorPool]*poolState),
		buffers:         make(map[gfx.Buffer]*bufferState),
		allocations:     make(map[gfx.Allocation]uint64),
		images:          make(map[gfx.Image]*imageState),
		swapchains:      make(map[gfx.Swapchain][]gfx.Image),
		acquireNext:     make(map[gfx.Swapchain]uint32),
	}
}

func (g *GPU) record(op string, args ...any) {
	g.Calls = append(g.Calls, Call{Op: op, Args: args})
}

func (g *GPU) create(kind string) uint64 {
	g.next++
	g.live[g.next] = kind
	return g.next
}

func (g *GPU) destroy(kind string, handle uint64) {
	if handle == 0 {
		return
	}
	got, ok := g.live[handle]
	if !ok || got != kind {
		g.Errors = append(g.Errors, fmt.Sprintf("destroy of unknown %s %d", kind, handle))
		return
	}
	delete(g.live, handle)
}

// Live lists the kinds of objects that were created and not yet destroyed.
func (g *GPU) Live() []string {
	var out []string
	for _, kind := range g.live {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func (g *GPU) IsLive(handle uint64) bool {
	_, ok := g.live[handle]
	return ok
}

// Ops returns the names of all recorded calls, in order.
func (g *GPU) Ops() []string {
	ops := make([]string, len(g.Calls))
	for i, c := range g.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many calls named op were recorded.
func (g *GPU) Count(op string) int {
	n := 0
	for _, c := range g.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Index returns the position of the n-th (0-based) call named op, or -1.
func (g *GPU) Index(op string, n int) int {
	for i, c := range g.Calls {
		if c.Op == op {
			if n == 0 {
				return i
			}
			n--
		}
	}
	return -1
}

func (g *GPU) Barriers() []gfx.ImageBarrier {
	var out []gfx.ImageBarrier
	for _, c := range g.Calls {
		if c.Op == "cmd.PipelineBarrier" {
			out = append(out, c.Args[0].(gfx.ImageBarrier))
		}
	}
	return out
}

// Reset forgets the recorded calls but keeps all object state.
func (g *GPU) Reset() {
	g.Calls = nil
}

// FailNextBufferCreate makes the next CreateBuffer call fail.
func (g *GPU) FailNextBufferCreate() {
	g.FailBufferCreate = g.bufferCalls + 1
}

func (g *GPU) FenceWaits(f gfx.Fence) int   { return g.fence(f).waits }
func (g *GPU) FenceSignals(f gfx.Fence) int { return g.fence(f).signals }
func (g *GPU) FenceSignaled(f gfx.Fence) bool {
	return g.fence(f).signaled
}

func (g *GPU) fence(f gfx.Fence) *fenceState {
	if st, ok := g.fences[f]; ok {
		return st
	}
	return &fenceState{}
}

// PoolMaxSets returns the set capacity of each descriptor pool ever created,
// in creation order.
func (g *GPU) PoolMaxSets() []uint32 {
	out := make([]uint32, len(g.poolOrder))
	for i, p := range g.poolOrder {
		out[i] = g.pools[p].maxSets
	}
	return out
}

func (g *GPU) PoolSizes(p gfx.DescriptorPool) []gfx.PoolSize {
	return g.pools[p].sizes
}

func (g *GPU) PoolAllocated(p gfx.DescriptorPool) uint32 {
	return g.pools[p].allocated
}

func (g *GPU) BufferData(b gfx.Buffer) []byte {
	if st, ok := g.buffers[b]; ok {
		return st.data
	}
	return nil
}

func (g *GPU) BufferUsage(b gfx.Buffer) gfx.BufferUsageFlags {
	return g.buffers[b].usage
}

func (g *GPU) BufferMemory(b gfx.Buffer) gfx.MemoryUsage {
	return g.buffers[b].memory
}

func (g *GPU) ImageInfo(i gfx.Image) gfx.ImageCreateInfo {
	return g.images[i].info
}

func (g *GPU) Writes() []gfx.DescriptorWrite {
	return g.writes
}

func (g *GPU) CommandBuffers() []*Cmd {
	return g.cmds
}

// Device

func (g *GPU) CreateFence(signaled bool) (gfx.Fence, error) {
	f := gfx.Fence(g.create("fence"))
	g.fences[f] = &fenceState{signaled: signaled}
	g.record("CreateFence", f, signaled)
	return f, nil
}

func (g *GPU) DestroyFence(f gfx.Fence) {
	g.record("DestroyFence", f)
	g.destroy("fence", uint64(f))
}

func (g *GPU) WaitForFence(f gfx.Fence, timeout time.Duration) error {
	g.record("WaitForFence", f, timeout)
	st, ok := g.fences[f]
	if !ok {
		return errors.Newf("unknown fence %d", f)
	}
	st.waits++
	if !st.signaled {
		return errors.Wrapf(gfx.ErrTimeout, "fence %d never signaled", f)
	}
	return nil
}

func (g *GPU) ResetFence(f gfx.Fence) error {
	g.record("ResetFence", f)
	st, ok := g.fences[f]
	if !ok {
		return errors.Newf("unknown fence %d", f)
	}
	st.signaled = false
	return nil
}

func (g *GPU) CreateSemaphore() (gfx.Semaphore, error) {
	s := gfx.Semaphore(g.create("semaphore"))
	g.record("CreateSemaphore", s)
	return s, nil
}

func (g *GPU) DestroySemaphore(s gfx.Semaphore) {
	g.record("DestroySemaphore", s)
	g.destroy("semaphore", uint64(s))
}

func (g *GPU) CreateCommandPool(family uint32) (gfx.CommandPool, error) {
	p := gfx.CommandPool(g.create("command pool"))
	g.record("CreateCommandPool", p, family)
	return p, nil
}

func (g *GPU) DestroyCommandPool(p gfx.CommandPool) {
	g.record("DestroyCommandPool", p)
	g.destroy("command pool", uint64(p))
}

func (g *GPU) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	if _, ok := g.live[uint64(p)]; !ok {
		return nil, errors.Newf("unknown command pool %d", p)
	}
	cmd := &Cmd{gpu: g, ID: len(g.cmds), Pool: p}
	g.cmds = append(g.cmds, cmd)
	g.record("AllocateCommandBuffer", cmd.ID, p)
	return cmd, nil
}

func (g *GPU) CreateImageView(image gfx.Image, format gfx.Format, aspect gfx.ImageAspectFlags) (gfx.ImageView, error) {
	v := gfx.ImageView(g.create("image view"))
	g.record("CreateImageView", v, image, format, aspect)
	return v, nil
}

func (g *GPU) DestroyImageView(v gfx.ImageView) {
	g.record("DestroyImageView", v)
	g.destroy("image view", uint64(v))
}

func (g *GPU) CreateSampler(filter gfx.Filter) (gfx.Sampler, error) {
	s := gfx.Sampler(g.create("sampler"))
	g.record("CreateSampler", s, filter)
	return s, nil
}

func (g *GPU) DestroySampler(s gfx.Sampler) {
	g.record("DestroySampler", s)
	g.destroy("sampler", uint64(s))
}

func (g *GPU) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	l := gfx.DescriptorSetLayout(g.create("descriptor set layout"))
	g.record("CreateDescriptorSetLayout", l, append([]gfx.DescriptorBinding(nil), bindings...))
	return l, nil
}

func (g *GPU) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	g.record("DestroyDescriptorSetLayout", l)
	g.destroy("descriptor set layout", uint64(l))
}

func (g *GPU) CreateDescriptorPool(maxSets uint32, sizes []gfx.PoolSize) (gfx.DescriptorPool, error) {
	p := gfx.DescriptorPool(g.create("descriptor pool"))
	g.pools[p] = &poolState{maxSets: maxSets, sizes: append([]gfx.PoolSize(nil), sizes...)}
	g.poolOrder = append(g.poolOrder, p)
	g.record("CreateDescriptorPool", p, maxSets)
	return p, nil
}

func (g *GPU) ResetDescriptorPool(p gfx.DescriptorPool) error {
	g.record("ResetDescriptorPool", p)
	st, ok := g.pools[p]
	if !ok {
		return errors.Newf("unknown descriptor pool %d", p)
	}
	st.allocated = 0
	st.resets++
	return nil
}

func (g *GPU) DestroyDescriptorPool(p gfx.DescriptorPool) {
	g.record("DestroyDescriptorPool", p)
	g.destroy("descriptor pool", uint64(p))
}

func (g *GPU) AllocateDescriptorSet(p gfx.DescriptorPool, l gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	g.record("AllocateDescriptorSet", p, l)
	st, ok := g.pools[p]
	if !ok {
		return 0, errors.Newf("unknown descriptor pool %d", p)
	}
	if st.allocated >= st.maxSets {
		return 0, errors.Wrapf(gfx.ErrOutOfPoolMemory, "pool %d", p)
	}
	st.allocated++
	g.next++
	return gfx.DescriptorSet(g.next), nil
}

func (g *GPU) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	g.record("UpdateDescriptorSets", len(writes))
	g.writes = append(g.writes, writes...)
}

func (g *GPU) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	if len(code) == 0 {
		return 0, errors.New("empty shader code")
	}
	m := gfx.ShaderModule(g.create("shader module"))
	g.record("CreateShaderModule", m, len(code))
	return m, nil
}

func (g *GPU) DestroyShaderModule(m gfx.ShaderModule) {
	g.record("DestroyShaderModule", m)
	g.destroy("shader module", uint64(m))
}

func (g *GPU) CreatePipelineLayout(sets []gfx.DescriptorSetLayout, push []gfx.PushConstantRange) (gfx.PipelineLayout, error) {
	l := gfx.PipelineLayout(g.create("pipeline layout"))
	g.record("CreatePipelineLayout", l, append([]gfx.DescriptorSetLayout(nil), sets...), append([]gfx.PushConstantRange(nil), push...))
	return l, nil
}

func (g *GPU) DestroyPipelineLayout(l gfx.PipelineLayout) {
	g.record("DestroyPipelineLayout", l)
	g.destroy("pipeline layout", uint64(l))
}

func (g *GPU) CreateComputePipeline(info gfx.ComputePipelineInfo) (gfx.Pipeline, error) {
	if info.Stage.Module == 0 {
		return 0, errors.New("compute pipeline without shader module")
	}
	p := gfx.Pipeline(g.create("pipeline"))
	g.record("CreateComputePipeline", p, info)
	return p, nil
}

func (g *GPU) CreateGraphicsPipeline(info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	for _, s := range info.Stages {
		if s.Module == 0 {
			return 0, errors.New("graphics pipeline with null shader module")
		}
	}
	p := gfx.Pipeline(g.create("pipeline"))
	g.record("CreateGraphicsPipeline", p, info)
	return p, nil
}

func (g *GPU) DestroyPipeline(p gfx.Pipeline) {
	g.record("DestroyPipeline", p)
	g.destroy("pipeline", uint64(p))
}

func (g *GPU) BufferAddress(b gfx.Buffer) (uint64, error) {
	st, ok := g.buffers[b]
	if !ok {
		return 0, errors.Newf("unknown buffer %d", b)
	}
	if st.usage&gfx.BufferUsageShaderDeviceAddress == 0 {
		return 0, errors.Newf("buffer %d lacks device address usage", b)
	}
	return uint64(b) << 16, nil
}

func (g *GPU) WaitIdle() error {
	g.record("WaitIdle")
	return nil
}

// Queue

func (g *GPU) Family() uint32 {
	return g.QueueFamily
}

func (g *GPU) Submit(fence gfx.Fence, infos ...gfx.SubmitInfo) error {
	g.record("Submit", fence, infos)
	for _, info := range infos {
		for _, cb := range info.CommandBuffers {
			cmd := cb.(*Cmd)
			if cmd.recording {
				g.Errors = append(g.Errors, fmt.Sprintf("submit of command buffer %d while recording", cmd.ID))
			}
			cmd.execute()
		}
	}
	if fence != 0 {
		st, ok := g.fences[fence]
		if !ok {
			return errors.Newf("unknown fence %d", fence)
		}
		if st.signaled {
			g.Errors = append(g.Errors, fmt.Sprintf("submit with already signaled fence %d", fence))
		}
		st.signaled = true
		st.signals++
	}
	return nil
}

func (g *GPU) Present(sc gfx.Swapchain, index uint32, wait ...gfx.Semaphore) error {
	g.record("Present", sc, index, wait)
	if len(g.PresentErrs) > 0 {
		err := g.PresentErrs[0]
		g.PresentErrs = g.PresentErrs[1:]
		return err
	}
	return nil
}

// Allocator

func (g *GPU) CreateBuffer(size uint64, usage gfx.BufferUsageFlags, memory gfx.MemoryUsage) (gfx.Buffer, gfx.Allocation, error) {
	g.bufferCalls++
	if g.FailBufferCreate != 0 && g.bufferCalls == g.FailBufferCreate {
		return 0, 0, errors.New("out of device memory")
	}
	b := gfx.Buffer(g.create("buffer"))
	a := gfx.Allocation(g.create("allocation"))
	g.buffers[b] = &bufferState{size: size, usage: usage, memory: memory, data: make([]byte, size)}
	g.allocations[a] = uint64(b)
	g.record("CreateBuffer", b, size, usage, memory)
	return b, a, nil
}

func (g *GPU) DestroyBuffer(b gfx.Buffer, a gfx.Allocation) {
	g.record("DestroyBuffer", b)
	g.destroy("buffer", uint64(b))
	g.destroy("allocation", uint64(a))
}

func (g *GPU) CreateImage(info gfx.ImageCreateInfo, memory gfx.MemoryUsage) (gfx.Image, gfx.Allocation, error) {
	i := gfx.Image(g.create("image"))
	a := gfx.Allocation(g.create("allocation"))
	g.images[i] = &imageState{info: info, memory: memory}
	g.allocations[a] = uint64(i)
	g.record("CreateImage", i, info)
	return i, a, nil
}

func (g *GPU) DestroyImage(i gfx.Image, a gfx.Allocation) {
	g.record("DestroyImage", i)
	g.destroy("image", uint64(i))
	g.destroy("allocation", uint64(a))
}

func (g *GPU) Map(a gfx.Allocation) ([]byte, error) {
	g.record("Map", a)
	owner, ok := g.allocations[a]
	if !ok {
		return nil, errors.Newf("unknown allocation %d", a)
	}
	st, ok := g.buffers[gfx.Buffer(owner)]
	if !ok {
		return nil, errors.Newf("allocation %d is not a buffer", a)
	}
	if st.memory == gfx.MemoryGPUOnly {
		return nil, errors.Newf("allocation %d is not host visible", a)
	}
	return st.data, nil
}

func (g *GPU) Unmap(a gfx.Allocation) {
	g.record("Unmap", a)
}

func (g *GPU) Destroy() {
	g.record("DestroyAllocator")
}

// Surface

func (g *GPU) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, gfx.SwapchainDetails, error) {
	sc := gfx.Swapchain(g.create("swapchain"))
	images := make([]gfx.Image, g.SwapchainImages)
	for i := range images {
		g.next++
		images[i] = gfx.Image(g.next)
	}
	g.swapchains[sc] = images
	g.record("CreateSwapchain", sc, info)
	return sc, gfx.SwapchainDetails{Extent: info.Extent, Format: info.Format, Images: images}, nil
}

func (g *GPU) DestroySwapchain(sc gfx.Swapchain) {
	g.record("DestroySwapchain", sc)
	g.destroy("swapchain", uint64(sc))
	delete(g.swapchains, sc)
}

func (g *GPU) AcquireNextImage(sc gfx.Swapchain, signal gfx.Semaphore, timeout time.Duration) (uint32, error) {
	g.record("AcquireNextImage", sc, signal)
	var err error
	if len(g.AcquireErrs) > 0 {
		err = g.AcquireErrs[0]
		g.AcquireErrs = g.AcquireErrs[1:]
	}
	if err != nil && !errors.Is(err, gfx.ErrSuboptimal) {
		return 0, err
	}
	images, ok := g.swapchains[sc]
	if !ok {
		return 0, errors.Newf("unknown swapchain %d", sc)
	}
	idx := g.acquireNext[sc]
	g.acquireNext[sc] = (idx + 1) % uint32(len(images))
	return idx, err
}
