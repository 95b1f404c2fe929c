package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/chaos-io/bgcompose/config"
)

// CommandRemBG 调用外部命令抠图，例如 `rembg i - -`
type CommandRemBG struct {
	path string
	args []string
}

func NewCommandRemBG(cfg config.CommandConfig) *CommandRemBG {
	return &CommandRemBG{
		path: cfg.Path,
		args: cfg.Args,
	}
}

func (c *CommandRemBG) load() error {
	p, err := exec.LookPath(c.path)
	if err != nil {
		return fmt.Errorf("look up %s: %w", c.path, err)
	}
	c.path = p
	slog.Info("rembg command loaded", "path", p)
	return nil
}

func (c *CommandRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", c.path, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New(c.path + " produced no output")
	}
	return stdout.Bytes(), nil
}
