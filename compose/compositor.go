package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/chaos-io/bgcompose/rembg"
	"github.com/chaos-io/bgcompose/util"
	nhttp "github.com/chaos-io/bgcompose/util/http"
)

type Options struct {
	// StrictBackground 为 true 时背景合成失败直接返回错误，
	// 否则记录警告并输出去掉 alpha 的主体
	StrictBackground bool
	// ReuseAlpha 为 true 时输入已带透明通道则跳过抠图后端
	ReuseAlpha bool
}

type Request struct {
	InputPath           string
	OutputPath          string
	BackgroundType      string
	BackgroundColor     string
	BackgroundImagePath string
}

// Compositor 抠图并合成背景。
// 后端在第一次成功加载后缓存，加载失败不缓存，下次调用重试。
// 不支持并发调用。
type Compositor struct {
	load    rembg.Loader
	remover rembg.Remover
	opts    Options
	cli     nhttp.IClient
}

func NewCompositor(load rembg.Loader, opts Options) *Compositor {
	return &Compositor{
		load: load,
		opts: opts,
		cli:  nhttp.NewHTTPClient(),
	}
}

// RemoveBackground 处理一张图片，任何错误都记录日志并返回 false
func (c *Compositor) RemoveBackground(ctx context.Context, req Request) bool {
	if err := c.Process(ctx, req); err != nil {
		slog.Error("remove background failed", "input", req.InputPath, "err", err)
		return false
	}
	return true
}

// Process 与 RemoveBackground 相同，但把错误返回给调用方，
// 可以用 errors.Is 区分 ErrIO / ErrBackend / ErrColorParse / ErrInvalidRequest
func (c *Compositor) Process(ctx context.Context, req Request) error {
	defer util.Trace("remove background")()

	slog.Info("loading input image", "path", req.InputPath)
	input, err := util.ReadSource(ctx, c.cli, req.InputPath)
	if err != nil {
		return fmt.Errorf("%w: read input: %w", ErrIO, err)
	}

	subject, err := c.subject(ctx, input)
	if err != nil {
		return err
	}
	slog.Info("background removed", "width", subject.Bounds().Dx(), "height", subject.Bounds().Dy())

	result, err := c.composite(subject, req)
	if err != nil {
		if c.opts.StrictBackground || errors.Is(err, ErrInvalidRequest) {
			return err
		}
		slog.Error("apply background failed, falling back to subject without alpha",
			"type", req.BackgroundType, "err", err)
		result = dropAlpha(subject)
	}

	if err := util.SavePNG(req.OutputPath, result); err != nil {
		return fmt.Errorf("%w: write output: %w", ErrIO, err)
	}
	slog.Info("result saved", "path", req.OutputPath)
	return nil
}

// subject 调用后端得到带 alpha 的主体，统一转成 NRGBA，
// 灰度、调色板、16 位的后端输出都按 8 位 RGBA 处理
func (c *Compositor) subject(ctx context.Context, input []byte) (*image.NRGBA, error) {
	if c.opts.ReuseAlpha {
		if img, err := util.DecodeImage(input); err == nil {
			if nrgba := toNRGBA(img); hasUsefulAlpha(nrgba) {
				slog.Info("input already has alpha, skipping backend")
				return nrgba, nil
			}
		}
	}

	remover, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("removing background")
	output, err := remover.Remove(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}

	img, err := util.DecodeImage(output)
	if err != nil {
		return nil, fmt.Errorf("%w: decode backend output: %w", ErrBackend, err)
	}
	return toNRGBA(img), nil
}

func (c *Compositor) backend(ctx context.Context) (rembg.Remover, error) {
	if c.remover != nil {
		return c.remover, nil
	}
	remover, err := c.load(ctx)
	if err != nil {
		slog.Error("failed to load backend", "err", err)
		return nil, fmt.Errorf("%w: load: %w", ErrBackend, err)
	}
	c.remover = remover
	return remover, nil
}

// composite 按背景类型合成；transparent 直接返回主体，保证尺寸和 alpha 不变。
// 完全不透明的主体会被 image/png 写成 RGB
func (c *Compositor) composite(subject *image.NRGBA, req Request) (image.Image, error) {
	bg, err := ParseBackground(req.BackgroundType, req.BackgroundColor, req.BackgroundImagePath)
	if err != nil {
		return nil, err
	}
	if _, ok := bg.(Transparent); ok {
		slog.Info("using transparent background")
		return subject, nil
	}

	result, err := bg.apply(subject)
	if err != nil {
		return nil, err
	}
	slog.Info("applied background", "type", bg.Kind())
	return result, nil
}

// Validate 检查必填参数。Process 本身不调用它：缺少的颜色或背景图按合成失败处理
func (r Request) Validate() error {
	if r.InputPath == "" || r.OutputPath == "" {
		return fmt.Errorf("%w: input and output paths are required", ErrInvalidRequest)
	}
	switch r.BackgroundType {
	case "", BackgroundTransparent:
	case BackgroundSolid:
		if r.BackgroundColor == "" {
			return fmt.Errorf("%w: background color is required for solid background", ErrInvalidRequest)
		}
	case BackgroundImage:
		if r.BackgroundImagePath == "" {
			return fmt.Errorf("%w: background image is required for image background", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown background type %q", ErrInvalidRequest, r.BackgroundType)
	}
	return nil
}
