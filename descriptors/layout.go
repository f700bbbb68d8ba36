package descriptors

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

type LayoutBuilder struct {
	bindings []gfx.DescriptorBinding
}

func (b *LayoutBuilder) AddBinding(binding uint32, typ gfx.DescriptorType) *LayoutBuilder {
	b.bindings = append(b.bindings, gfx.DescriptorBinding{Binding: binding, Type: typ, Count: 1})
	return b
}

func (b *LayoutBuilder) Clear() {
	b.bindings = b.bindings[:0]
}

// Build creates the layout with every binding visible to stages.
func (b *LayoutBuilder) Build(dev gfx.Device, stages gfx.ShaderStageFlags) (gfx.DescriptorSetLayout, error) {
	bindings := make([]gfx.DescriptorBinding, len(b.bindings))
	for i, binding := range b.bindings {
		binding.Stages |= stages
		bindings[i] = binding
	}
	layout, err := dev.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return 0, errors.Wrap(err, "create descriptor set layout")
	}
	return layout, nil
}

// Writer batches descriptor writes and applies them to one set at a time.
type Writer struct {
	writes []gfx.DescriptorWrite
}

func (w *Writer) WriteImage(binding uint32, view gfx.ImageView, sampler gfx.Sampler, layout gfx.ImageLayout, typ gfx.DescriptorType) {
	w.writes = append(w.writes, gfx.DescriptorWrite{
		Binding: binding,
		Type:    typ,
		Images:  []gfx.DescriptorImageInfo{{View: view, Sampler: sampler, Layout: layout}},
	})
}

func (w *Writer) WriteBuffer(binding uint32, buffer gfx.Buffer, size, offset uint64, typ gfx.DescriptorType) {
	w.writes = append(w.writes, gfx.DescriptorWrite{
		Binding: binding,
		Type:    typ,
		Buffers: []gfx.DescriptorBufferInfo{{Buffer: buffer, Offset: offset, Size: size}},
	})
}

func (w *Writer) Clear() {
	w.writes = w.writes[:0]
}

func (w *Writer) UpdateSet(dev gfx.Device, set gfx.DescriptorSet) {
	writes := make([]gfx.DescriptorWrite, len(w.writes))
	for i, write := range w.writes {
		write.Set = set
		writes[i] = write
	}
	dev.UpdateDescriptorSets(writes)
}
