// Package overlay mirrors the agent's latest response and drawing prompt
// into files on disk, so a streaming overlay (OBS text source etc.) can
// render them.
package overlay

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Output writes response and prompt text to overlay files. Each write
// replaces the file's content; after the configured expiry the file is
// cleared unless a newer write superseded it.
type Output struct {
	responseFile string
	promptFile   string
	expire       time.Duration
	logger       *slog.Logger

	mu  sync.Mutex
	gen uint64
}

// New creates an Output. Files are cleared on construction so a stale
// response from a previous run is never displayed.
func New(responseFile, promptFile string, expire time.Duration, logger *slog.Logger) *Output {
	o := &Output{
		responseFile: responseFile,
		promptFile:   promptFile,
		expire:       expire,
		logger:       logger,
	}
	o.write(o.responseFile, "")
	o.write(o.promptFile, "")
	return o
}

// WriteResponse replaces the response file content and schedules expiry.
func (o *Output) WriteResponse(text string) {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	o.write(o.responseFile, text)
	if o.expire > 0 && text != "" {
		go o.expireAfter(o.responseFile, gen)
	}
}

// WritePrompt replaces the prompt file content. Prompt text does not
// expire; it is replaced by the next drawing.
func (o *Output) WritePrompt(text string) {
	o.write(o.promptFile, text)
}

// Clear empties both files immediately and cancels pending expiries.
func (o *Output) Clear() {
	o.mu.Lock()
	o.gen++
	o.mu.Unlock()
	o.write(o.responseFile, "")
	o.write(o.promptFile, "")
}

func (o *Output) expireAfter(path string, gen uint64) {
	time.Sleep(o.expire)
	o.mu.Lock()
	stale := o.gen != gen
	o.mu.Unlock()
	if stale {
		return
	}
	o.write(path, "")
}

func (o *Output) write(path, text string) {
	if path == "" {
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			o.logger.Warn("overlay directory not writable", "dir", dir, "err", err)
			return
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		o.logger.Warn("overlay write failed", "file", path, "err", err)
	}
}
