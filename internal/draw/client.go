// Package draw generates images through a Stable Diffusion web-UI API and
// captions inbound image attachments through its interrogate endpoint.
package draw

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to an AUTOMATIC1111-compatible Stable Diffusion API.
type Client struct {
	baseURL        string
	negativePrompt string
	params         map[string]any
	http           *http.Client
}

// NewClient creates a drawing client. params are merged into every txt2img
// request body, so sampler, steps and size come straight from config.
func NewClient(baseURL, negativePrompt string, params map[string]any) *Client {
	return &Client{
		baseURL:        baseURL,
		negativePrompt: negativePrompt,
		params:         params,
		http:           &http.Client{Timeout: 5 * time.Minute},
	}
}

// TextToImage renders prompt and returns raw PNG bytes.
func (c *Client) TextToImage(ctx context.Context, prompt string) ([]byte, error) {
	body := map[string]any{
		"prompt":          prompt,
		"negative_prompt": c.negativePrompt,
	}
	for k, v := range c.params {
		body[k] = v
	}

	var out struct {
		Images []string `json:"images"`
	}
	if err := c.post(ctx, "/sdapi/v1/txt2img", body, &out); err != nil {
		return nil, err
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("drawing backend returned no images")
	}
	img, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Interrogate captions an image, returning a short natural-language
// description suitable for folding into chat text.
func (c *Client) Interrogate(ctx context.Context, image []byte) (string, error) {
	body := map[string]any{
		"image": base64.StdEncoding.EncodeToString(image),
		"model": "clip",
	}
	var out struct {
		Caption string `json:"caption"`
	}
	if err := c.post(ctx, "/sdapi/v1/interrogate", body, &out); err != nil {
		return "", err
	}
	return out.Caption, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drawing backend request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("drawing backend returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
