package compose

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/nfnt/resize"
)

const (
	BackgroundTransparent = "transparent"
	BackgroundSolid       = "solid"
	BackgroundImage       = "image"
)

// Background 主体要合成到的背景
type Background interface {
	Kind() string
	// apply 把主体合成到背景上，输出尺寸与主体一致
	apply(subject *image.NRGBA) (image.Image, error)
}

type Transparent struct{}

func (Transparent) Kind() string { return BackgroundTransparent }

func (Transparent) apply(subject *image.NRGBA) (image.Image, error) {
	return subject, nil
}

type Solid struct {
	Color color.NRGBA
}

func (Solid) Kind() string { return BackgroundSolid }

func (s Solid) apply(subject *image.NRGBA) (image.Image, error) {
	b := subject.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), color.NRGBA{R: s.Color.R, G: s.Color.G, B: s.Color.B, A: 255})
	alphaComposite(canvas, subject)
	return dropAlpha(canvas), nil
}

type ImageFile struct {
	Path string
}

func (ImageFile) Kind() string { return BackgroundImage }

func (f ImageFile) apply(subject *image.NRGBA) (image.Image, error) {
	bg, err := imaging.Open(f.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: open background %s: %w", ErrIO, f.Path, err)
	}

	b := subject.Bounds()
	canvas := resizeTo(bg, b.Dx(), b.Dy())
	alphaComposite(canvas, subject)
	return dropAlpha(canvas), nil
}

// ParseBackground 根据类型名和参数构造背景，空类型视为 transparent
func ParseBackground(kind, hexColor, imagePath string) (Background, error) {
	switch kind {
	case "", BackgroundTransparent:
		return Transparent{}, nil
	case BackgroundSolid:
		c, err := ParseHexColor(hexColor)
		if err != nil {
			return nil, err
		}
		return Solid{Color: c}, nil
	case BackgroundImage:
		return ImageFile{Path: imagePath}, nil
	default:
		return nil, fmt.Errorf("%w: unknown background type %q", ErrInvalidRequest, kind)
	}
}

// ParseHexColor 解析 "RRGGBB" 或 "#RRGGBB"
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrColorParse, s)
	}
	// ParseUint 拒绝符号和空白，Sscanf 不会
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrColorParse, s)
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q: %w", ErrColorParse, s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// resizeTo Lanczos 缩放到指定尺寸（不保持比例）
func resizeTo(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return toNRGBA(img)
	}
	return toNRGBA(resize.Resize(uint(w), uint(h), img, resize.Lanczos3))
}
