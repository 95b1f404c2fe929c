package compose

import "errors"

var (
	// ErrIO 输入、背景图或输出文件无法读写
	ErrIO = errors.New("io error")
	// ErrBackend 抠图后端加载失败、调用失败或返回了无法解码的数据
	ErrBackend = errors.New("backend error")
	// ErrColorParse 颜色不是 6 位十六进制
	ErrColorParse = errors.New("invalid hex color")
	// ErrInvalidRequest 未知的背景类型或缺少必填参数
	ErrInvalidRequest = errors.New("invalid request")
)
