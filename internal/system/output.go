package system

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/arm7tdmi-core/gbacore/internal/ppu"
)

// Image converts the current ARGB8888 framebuffer into a standard
// image.RGBA, row-major, suitable for PNG encoding or further host-side
// processing.
func (m *Machine) Image() *image.RGBA {
	fb := m.Framebuffer()
	img := image.NewRGBA(image.Rect(0, 0, ppu.ScreenWidth, ppu.ScreenHeight))
	for i, px := range fb {
		o := i * 4
		img.Pix[o+0] = byte(px >> 16)
		img.Pix[o+1] = byte(px >> 8)
		img.Pix[o+2] = byte(px)
		img.Pix[o+3] = byte(px >> 24)
	}
	return img
}

// ScaledImage returns the current frame upscaled by an integer factor
// with nearest-neighbor interpolation, matching the blocky magnification
// a host display gives a handheld LCD's output. factor <= 1 returns the
// frame unscaled.
func (m *Machine) ScaledImage(factor int) *image.RGBA {
	src := m.Image()
	if factor <= 1 {
		return src
	}
	dstRect := image.Rect(0, 0, src.Bounds().Dx()*factor, src.Bounds().Dy()*factor)
	dst := image.NewRGBA(dstRect)
	xdraw.NearestNeighbor.Scale(dst, dstRect, src, src.Bounds(), draw.Over, nil)
	return dst
}
