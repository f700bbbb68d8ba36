// Package gfx declares the small slice of the native graphics API the engine
// core is written against. Objects are opaque handles owned by a Device;
// the zero value of every handle is the null handle.
package gfx

type Fence uint64
type Semaphore uint64
type Image uint64
type ImageView uint64
type Sampler uint64
type Buffer uint64
type Allocation uint64
type CommandPool uint64
type DescriptorPool uint64
type DescriptorSet uint64
type DescriptorSetLayout uint64
type ShaderModule uint64
type PipelineLayout uint64
type Pipeline uint64
type Swapchain uint64
