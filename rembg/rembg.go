package rembg

import (
	"context"
	"fmt"

	"github.com/chaos-io/bgcompose/config"
	nhttp "github.com/chaos-io/bgcompose/util/http"
)

// Remover 抠图后端：输入原始图片字节，输出带 alpha 通道的编码图片
type Remover interface {
	Remove(ctx context.Context, data []byte) ([]byte, error)
}

// Loader 获取后端，失败时调用方下次可以重试
type Loader func(ctx context.Context) (Remover, error)

type DefaultRemBG struct{}

func NewDefaultRemBG() *DefaultRemBG {
	return &DefaultRemBG{}
}

// Remove 原样返回输入，用于离线调试或输入已经抠好图的场景
func (d *DefaultRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	return data, nil
}

// Open 按配置创建后端并确认其可用
func Open(ctx context.Context, cfg *config.Config) (Remover, error) {
	switch cfg.Backend {
	case config.BackendPassthrough:
		return NewDefaultRemBG(), nil
	case config.BackendCommand:
		c := NewCommandRemBG(cfg.Command)
		if err := c.load(); err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendComfyUI:
		b, err := NewBiRefNetRemBG(cfg.ComfyUI, nhttp.NewHTTPClient())
		if err != nil {
			return nil, err
		}
		if err := b.ping(ctx); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func NewLoader(cfg *config.Config) Loader {
	return func(ctx context.Context) (Remover, error) {
		return Open(ctx, cfg)
	}
}
