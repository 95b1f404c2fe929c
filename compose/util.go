package compose

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// hasUsefulAlpha 检查 alpha 通道是否 真的包含透明信息
// 只要存在非 255（非完全不透明），就认为“已有抠图”
func hasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// alphaComposite 以 Porter-Duff over 把 src 叠加到 dst 上，两者左上角对齐
func alphaComposite(dst *image.NRGBA, src image.Image) {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
}

// dropAlpha 丢弃 alpha，RGB 保持不变（不做预乘），结果完全不透明
// PNG 编码器遇到不透明图片会写成 RGB
func dropAlpha(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 255
	}
	return dst
}

// toNRGBA 转为左上角为 (0,0) 的 NRGBA，方便按下标访问像素
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(img)
}
