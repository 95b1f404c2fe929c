package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"mime/multipart"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/chaos-io/bgcompose/config"
	nhttp "github.com/chaos-io/bgcompose/util/http"
	"github.com/segmentio/ksuid"
)

const (
	BiRefNetModel = "BiRefNet"

	// workflow 中 LoadImage 节点的占位文件名
	imagePlaceholder = "MyImage.png"
)

//go:embed workflow.json
var workflowData string

// BiRefNetRemBG 通过 ComfyUI 的 BiRefNet workflow 抠图
type BiRefNetRemBG struct {
	baseURL      string
	workflow     string
	clientID     string
	pollInterval time.Duration
	timeout      time.Duration
	cli          nhttp.IClient
}

func NewBiRefNetRemBG(cfg config.ComfyUIConfig, cli nhttp.IClient) (*BiRefNetRemBG, error) {
	workflow := workflowData
	if cfg.WorkflowPath != "" {
		data, err := os.ReadFile(cfg.WorkflowPath)
		if err != nil {
			return nil, fmt.Errorf("read workflow: %w", err)
		}
		workflow = string(data)
	}
	if !strings.Contains(workflow, imagePlaceholder) {
		return nil, fmt.Errorf("workflow has no %q placeholder", imagePlaceholder)
	}

	return &BiRefNetRemBG{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/") + "/",
		workflow:     workflow,
		clientID:     ksuid.New().String(),
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		cli:          cli,
	}, nil
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	name, err := b.uploadImage(ctx, data)
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, name)
	if err != nil {
		return nil, err
	}

	out, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	return b.view(ctx, out)
}

// ping 确认服务可达，作为懒加载时的可用性检查
func (b *BiRefNetRemBG) ping(ctx context.Context) error {
	err := b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.baseURL + "api/system_stats",
		Method:     http.MethodGet,
		Response:   &map[string]any{},
		Timeout:    10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("comfyui unreachable: %w", err)
	}
	slog.Info("comfyui backend loaded", "model", BiRefNetModel, "url", b.baseURL)
	return nil
}

type uploadImageResp struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// 用 ksuid 命名，避免并发上传互相覆盖
	part, err := writer.CreateFormFile("image", ksuid.New().String()+".png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}

	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	resp := &uploadImageResp{}
	err = b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.baseURL + "api/upload/image",
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		return "", errors.New("upload image: empty name in response")
	}

	slog.Debug("image uploaded", "name", resp.Name, "subfolder", resp.Subfolder)
	if resp.Subfolder != "" {
		return resp.Subfolder + "/" + resp.Name, nil
	}
	return resp.Name, nil
}

type promptResp struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, imageName string) (string, error) {
	quoted, err := json.Marshal(imageName)
	if err != nil {
		return "", err
	}
	workflow := strings.Replace(b.workflow, `"`+imagePlaceholder+`"`, string(quoted), 1)

	wk := map[string]any{}
	if err := json.Unmarshal([]byte(workflow), &wk); err != nil {
		return "", fmt.Errorf("unmarshal workflow data: %w", err)
	}

	resp := &promptResp{}
	err = b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.baseURL + "api/prompt",
		Method:     http.MethodPost,
		Body:       map[string]any{"prompt": wk, "client_id": b.clientID},
		Response:   resp,
	})
	if err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("queue prompt: node errors %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("queue prompt: empty prompt_id")
	}

	slog.Debug("prompt queued", "prompt_id", resp.PromptID, "number", resp.Number)
	return resp.PromptID, nil
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []outputImage `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

// waitOutput 轮询 history 直到 workflow 产出图片
func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (outputImage, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		history := map[string]historyEntry{}
		err := b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
			RequestURI: b.baseURL + "api/history/" + promptID,
			Method:     http.MethodGet,
			Response:   &history,
		})
		if err != nil {
			return outputImage{}, fmt.Errorf("get history: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return outputImage{}, fmt.Errorf("prompt %s failed", promptID)
			}
			for _, node := range slices.Sorted(maps.Keys(entry.Outputs)) {
				if images := entry.Outputs[node].Images; len(images) > 0 {
					return images[0], nil
				}
			}
			if entry.Status.Completed {
				return outputImage{}, fmt.Errorf("prompt %s completed without output images", promptID)
			}
		}

		select {
		case <-ctx.Done():
			return outputImage{}, fmt.Errorf("wait prompt %s: %w", promptID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *BiRefNetRemBG) view(ctx context.Context, img outputImage) ([]byte, error) {
	var data []byte
	err := b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.baseURL + "api/view",
		Method:     http.MethodGet,
		Query: map[string]string{
			"filename":  img.Filename,
			"subfolder": img.Subfolder,
			"type":      img.Type,
		},
		Response: &data,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch output %s: %w", img.Filename, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch output %s: empty body", img.Filename)
	}
	return data, nil
}
