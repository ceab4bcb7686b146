// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"errors"
	"image"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
	xdraw "golang.org/x/image/draw"

	"github.com/devblok/vizor/core"
	"github.com/devblok/vizor/utility/pak"
)

// Shader entries expected inside the configured pak archive.
const (
	blitVertexShader   = "blit.vert.spv"
	blitFragmentShader = "blit.frag.spv"
)

const bytesPerPixel = 4

// NewBlitScreen loads the blit shaders and builds every resource that
// depends on the current swapchain. Recreate rebuilds those after a
// swapchain change.
func NewBlitScreen(device *Device, swapchain *Swapchain, scheduler *Scheduler,
	memory core.Memory, archive *pak.Archive) (*BlitScreen, error) {

	vert, err := archive.ReadAll(blitVertexShader)
	if err != nil {
		return nil, errors.New("blit vertex shader: " + err.Error())
	}
	frag, err := archive.ReadAll(blitFragmentShader)
	if err != nil {
		return nil, errors.New("blit fragment shader: " + err.Error())
	}

	b := &BlitScreen{
		device:    device,
		swapchain: swapchain,
		scheduler: scheduler,
		memory:    memory,
	}
	if b.vertModule, err = b.shaderModule(vert); err != nil {
		return nil, err
	}
	if b.fragModule, err = b.shaderModule(frag); err != nil {
		return nil, err
	}
	if err := b.create(); err != nil {
		return nil, err
	}
	return b, nil
}

// BlitScreen draws a source framebuffer into the acquired swapchain
// image, either through the fullscreen-quad pipeline (accelerated) or
// through a host staging copy (software).
type BlitScreen struct {
	device    *Device
	swapchain *Swapchain
	scheduler *Scheduler
	memory    core.Memory

	vertModule vk.ShaderModule
	fragModule vk.ShaderModule

	renderPass     vk.RenderPass
	pipelineLayout vk.PipelineLayout
	pipeline       vk.Pipeline

	imageViews   []vk.ImageView
	framebuffers []vk.Framebuffer

	// FrameSync: one render-completion semaphore per presentable
	// image, handed to Present as the frame's completion token.
	renderFinished []vk.Semaphore

	stagingBuffer vk.Buffer
	stagingMemory vk.DeviceMemory
	stagingHost   unsafe.Pointer
	stagingSize   vk.DeviceSize
}

// Recreate rebuilds everything bound to the swapchain's images, format
// or extent. Called after a swapchain rebuild or a stale present.
func (b *BlitScreen) Recreate() error {
	// Recorded but unsubmitted commands can still reference the old
	// framebuffers; WaitIdle only covers work the queue has seen.
	b.scheduler.WaitWorker()
	b.device.WaitIdle()
	b.destroySwapchainResources()
	return b.create()
}

func (b *BlitScreen) create() error {
	if err := b.createRenderPass(); err != nil {
		return err
	}
	if err := b.createPipeline(); err != nil {
		return err
	}
	if err := b.createFramebuffers(); err != nil {
		return err
	}
	if err := b.createSemaphores(); err != nil {
		return err
	}
	return b.createStaging()
}

// Draw records this frame's draw commands on the worker and returns
// the semaphore that fires when they complete.
func (b *BlitScreen) Draw(fb core.FramebufferConfig, useAccelerated bool) (vk.Semaphore, error) {
	index := b.swapchain.ImageIndex()
	if int(index) >= len(b.renderFinished) {
		return vk.NullSemaphore, errors.New("blit target out of date with swapchain")
	}

	if !useAccelerated {
		if err := b.uploadFramebuffer(fb); err != nil {
			return vk.NullSemaphore, err
		}
	}

	width, height := b.swapchain.Extent()
	transform := blitTransform(fb, width, height)
	target := b.framebuffers[index]
	swapImage := b.swapchain.Images()[index]
	accelerated := useAccelerated

	b.scheduler.SetWaitSemaphore(b.swapchain.ImageAvailable())
	b.scheduler.Record(func(cb vk.CommandBuffer) {
		if accelerated {
			b.recordQuad(cb, target, transform, width, height)
		} else {
			b.recordCopy(cb, swapImage, width, height)
		}
	})

	return b.renderFinished[index], nil
}

// uploadFramebuffer pulls the guest framebuffer out of emulated memory,
// scales it to the output extent on the host and leaves the pixels in
// the mapped staging buffer.
func (b *BlitScreen) uploadFramebuffer(fb core.FramebufferConfig) error {
	if b.memory == nil {
		return errors.New("software display path without guest memory")
	}
	if fb.Width == 0 || fb.Height == 0 {
		return errors.New("guest framebuffer has zero area")
	}

	stride := fb.Stride
	if stride == 0 {
		stride = fb.Width * bytesPerPixel
	}
	pixels := make([]byte, int(stride)*int(fb.Height))
	b.memory.ReadBlock(fb.Address+fb.Offset, pixels)

	src := &image.RGBA{
		Pix:    pixels,
		Stride: int(stride),
		Rect:   image.Rect(0, 0, int(fb.Width), int(fb.Height)),
	}

	width, height := b.swapchain.Extent()
	dst := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	xdraw.NearestNeighbor.Scale(dst, dst.Rect, src, src.Rect, xdraw.Src, nil)

	vk.Memcopy(b.stagingHost, dst.Pix)
	return nil
}

// recordQuad draws the fullscreen quad whose transform letterboxes the
// guest aspect ratio into the output.
func (b *BlitScreen) recordQuad(cb vk.CommandBuffer, target vk.Framebuffer,
	transform glm.Mat4, width, height uint32) {

	clear := make([]vk.ClearValue, 1)
	clear[0].SetColor([]float32{0, 0, 0, 1})

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  b.renderPass,
		Framebuffer: target,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: 1,
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(cb, &rpbi, vk.SubpassContentsInline)
	vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, b.pipeline)
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
		Width:    float32(width),
		Height:   float32(height),
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{{
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
	vk.CmdPushConstants(cb, b.pipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, 64, unsafe.Pointer(&transform[0]))
	vk.CmdDraw(cb, 4, 1, 0, 0)
	vk.CmdEndRenderPass(cb)
}

// recordCopy moves the staged host pixels straight into the swapchain
// image, bracketed by the layout transitions presentation expects.
func (b *BlitScreen) recordCopy(cb vk.CommandBuffer, swapImage vk.Image, width, height uint32) {
	subresource := vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}

	toTransfer := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       0,
		DstAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
		OldLayout:           vk.ImageLayoutUndefined,
		NewLayout:           vk.ImageLayoutTransferDstOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               swapImage,
		SubresourceRange:    subresource,
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toTransfer})

	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb, b.stagingBuffer, swapImage,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	toPresent := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit),
		OldLayout:           vk.ImageLayoutTransferDstOptimal,
		NewLayout:           vk.ImageLayoutPresentSrc,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               swapImage,
		SubresourceRange:    subresource,
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toPresent})
}

// blitTransform fits the guest aspect ratio into the output extent.
func blitTransform(fb core.FramebufferConfig, width, height uint32) glm.Mat4 {
	if fb.Width == 0 || fb.Height == 0 || width == 0 || height == 0 {
		return glm.Ident4()
	}

	guest := float32(fb.Width) / float32(fb.Height)
	output := float32(width) / float32(height)

	scaleX, scaleY := float32(1), float32(1)
	if output > guest {
		scaleX = guest / output
	} else {
		scaleY = output / guest
	}
	return glm.Scale3D(scaleX, scaleY, 1)
}

func (b *BlitScreen) shaderModule(code []byte) (vk.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(b.device.Logical(), &smci, nil, &module)); err != nil {
		return vk.NullShaderModule, errors.New("vk.CreateShaderModule(): " + err.Error())
	}
	return module, nil
}

func (b *BlitScreen) createRenderPass() error {
	attachments := []vk.AttachmentDescription{{
		Format:         b.swapchain.Format(),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRef)),
		PColorAttachments:    colorRef,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(b.device.Logical(), &rpci, nil, &renderPass)); err != nil {
		return errors.New("vk.CreateRenderPass(): " + err.Error())
	}
	b.renderPass = renderPass
	return nil
}

func (b *BlitScreen) createPipeline() error {
	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			Size:       64,
		}},
	}

	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(b.device.Logical(), &plci, nil, &layout)); err != nil {
		return errors.New("vk.CreatePipelineLayout(): " + err.Error())
	}
	b.pipelineLayout = layout

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: b.vertModule,
		PName:  "main\x00",
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: b.fragModule,
		PName:  "main\x00",
	}}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleStrip,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateViewport,
				vk.DynamicStateScissor,
			},
		},
		Layout:     b.pipelineLayout,
		RenderPass: b.renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(b.device.Logical(), vk.NullPipelineCache,
		uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return errors.New("vk.CreateGraphicsPipelines(): " + err.Error())
	}
	b.pipeline = pipelines[0]
	return nil
}

func (b *BlitScreen) createFramebuffers() error {
	width, height := b.swapchain.Extent()
	images := b.swapchain.Images()

	b.imageViews = make([]vk.ImageView, 0, len(images))
	b.framebuffers = make([]vk.Framebuffer, 0, len(images))
	for _, img := range images {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   b.swapchain.Format(),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var view vk.ImageView
		if err := vk.Error(vk.CreateImageView(b.device.Logical(), &ivci, nil, &view)); err != nil {
			return errors.New("vk.CreateImageView(): " + err.Error())
		}
		b.imageViews = append(b.imageViews, view)

		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      b.renderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           width,
			Height:          height,
			Layers:          1,
		}
		var framebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(b.device.Logical(), &fci, nil, &framebuffer)); err != nil {
			return errors.New("vk.CreateFramebuffer(): " + err.Error())
		}
		b.framebuffers = append(b.framebuffers, framebuffer)
	}
	return nil
}

func (b *BlitScreen) createSemaphores() error {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	b.renderFinished = make([]vk.Semaphore, b.swapchain.ImageCount())
	for i := range b.renderFinished {
		if err := vk.Error(vk.CreateSemaphore(b.device.Logical(), &sci, nil, &b.renderFinished[i])); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}
	}
	return nil
}

func (b *BlitScreen) createStaging() error {
	width, height := b.swapchain.Extent()
	size := vk.DeviceSize(width) * vk.DeviceSize(height) * bytesPerPixel

	bci := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  size,
		Usage: vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(b.device.Logical(), &bci, nil, &buffer)); err != nil {
		return errors.New("vk.CreateBuffer(): " + err.Error())
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device.Logical(), buffer, &requirements)
	requirements.Deref()

	memoryType, err := findMemoryType(b.device.Physical(), requirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(b.device.Logical(), &mai, nil, &memory)); err != nil {
		return errors.New("vk.AllocateMemory(): " + err.Error())
	}
	if err := vk.Error(vk.BindBufferMemory(b.device.Logical(), buffer, memory, 0)); err != nil {
		return errors.New("vk.BindBufferMemory(): " + err.Error())
	}

	var host unsafe.Pointer
	if err := vk.Error(vk.MapMemory(b.device.Logical(), memory, 0, size, 0, &host)); err != nil {
		return errors.New("vk.MapMemory(): " + err.Error())
	}

	b.stagingBuffer = buffer
	b.stagingMemory = memory
	b.stagingHost = host
	b.stagingSize = size
	return nil
}

func findMemoryType(physical vk.PhysicalDevice, typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memoryProperties)
	memoryProperties.Deref()

	for idx := uint32(0); idx < memoryProperties.MemoryTypeCount; idx++ {
		if (typeBits & 1) == 1 {
			memoryProperties.MemoryTypes[idx].Deref()
			if (memoryProperties.MemoryTypes[idx].PropertyFlags & properties) == properties {
				return idx, nil
			}
		}
		typeBits >>= 1
	}
	return 0, errors.New("requested memory type not found")
}

func (b *BlitScreen) destroySwapchainResources() {
	for _, semaphore := range b.renderFinished {
		vk.DestroySemaphore(b.device.Logical(), semaphore, nil)
	}
	b.renderFinished = nil

	for _, framebuffer := range b.framebuffers {
		vk.DestroyFramebuffer(b.device.Logical(), framebuffer, nil)
	}
	b.framebuffers = nil

	for _, view := range b.imageViews {
		vk.DestroyImageView(b.device.Logical(), view, nil)
	}
	b.imageViews = nil

	if b.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(b.device.Logical(), b.pipeline, nil)
		b.pipeline = vk.NullPipeline
	}
	if b.pipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(b.device.Logical(), b.pipelineLayout, nil)
		b.pipelineLayout = vk.NullPipelineLayout
	}
	if b.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(b.device.Logical(), b.renderPass, nil)
		b.renderPass = vk.NullRenderPass
	}

	if b.stagingHost != nil {
		vk.UnmapMemory(b.device.Logical(), b.stagingMemory)
		b.stagingHost = nil
	}
	if b.stagingBuffer != vk.NullBuffer {
		vk.DestroyBuffer(b.device.Logical(), b.stagingBuffer, nil)
		b.stagingBuffer = vk.NullBuffer
	}
	if b.stagingMemory != vk.NullDeviceMemory {
		vk.FreeMemory(b.device.Logical(), b.stagingMemory, nil)
		b.stagingMemory = vk.NullDeviceMemory
	}
}

// Destroy releases every resource, shader modules included. The
// scheduler must still be running; ShutDown stops it afterwards.
func (b *BlitScreen) Destroy() {
	b.scheduler.WaitWorker()
	b.destroySwapchainResources()
	if b.vertModule != vk.NullShaderModule {
		vk.DestroyShaderModule(b.device.Logical(), b.vertModule, nil)
		b.vertModule = vk.NullShaderModule
	}
	if b.fragModule != vk.NullShaderModule {
		vk.DestroyShaderModule(b.device.Logical(), b.fragModule, nil)
		b.fragModule = vk.NullShaderModule
	}
}
