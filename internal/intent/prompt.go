package intent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// defaultPromptText instructs the model to decompose a request into the
// action JSON the parser decodes. Kept in sync with the Kind set above.
const defaultPromptText = `You decompose a user's request into an ordered list of assistant actions.
Reply with JSON only, no prose, in exactly this form:

{"actions":[{"intent":"<intent>","params":{...}}]}

Available intents and their params:

- write_note: save a note. params: "text" (required), "title" (optional).
- list_notes: list saved notes. params: none.
- get_calendar: read calendar events. params: "from", "to" (optional, YYYY-MM-DD).
- add_calendar: add a calendar event. params: "title" (required), "date" (YYYY-MM-DD, required), "time" (HH:MM, optional), "description" (optional).
- web_search: search the web. params: "query" (required).
- unknown: the request fits nothing above. params: "text" (the raw request).

Rules:

- Emit the actions in the order the user asked for them.
- A compound request becomes several actions. "X 검색해서 메모해줘" is a
  web_search followed by a write_note.
- When a later action depends on an earlier result, still emit both and
  leave the dependent field empty. The runtime fills it in.
- If nothing fits, emit a single unknown action carrying the raw text.
- The user may write in any language. Korean is common. Keep param values
  in the user's language.

Examples:

user: 오늘 한 일 메모해줘: 프로젝트 완료
{"actions":[{"intent":"write_note","params":{"text":"프로젝트 완료"}}]}

user: 내일 3시에 치과 일정 추가해줘
{"actions":[{"intent":"add_calendar","params":{"title":"치과","date":"tomorrow","time":"15:00"}}]}

user: 고양이 사료 추천 검색해서 결과 메모해줘
{"actions":[{"intent":"web_search","params":{"query":"고양이 사료 추천"}},{"intent":"write_note","params":{"title":"고양이 사료 추천","text":""}}]}
`

// Prompt holds the parser's system prompt. When loaded from a file it can
// be reloaded in place, so a running server picks up edits without a
// restart.
type Prompt struct {
	mu   sync.RWMutex
	text string
	path string
}

// DefaultPrompt returns the built-in prompt.
func DefaultPrompt() *Prompt {
	return &Prompt{text: defaultPromptText}
}

// LoadPrompt reads the prompt from a file.
func LoadPrompt(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("load prompt: %s is empty", path)
	}
	return &Prompt{text: string(data), path: path}, nil
}

// Text returns the current prompt text.
func (p *Prompt) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

// Reload re-reads the backing file. It is a no-op for the built-in
// prompt, and keeps the previous text when the file has gone empty.
func (p *Prompt) Reload() error {
	p.mu.RLock()
	path := p.path
	p.mu.RUnlock()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reload prompt: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return fmt.Errorf("reload prompt: %s is empty", path)
	}

	p.mu.Lock()
	p.text = string(data)
	p.mu.Unlock()
	return nil
}

// Watch reloads the prompt whenever its backing file changes, until ctx
// is done. Editors replace files rather than writing in place, so the
// watch covers the directory and filters for the prompt's name.
func (p *Prompt) Watch(ctx context.Context, logger *slog.Logger) error {
	p.mu.RLock()
	path := p.path
	p.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("watch prompt: no backing file")
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch prompt: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch prompt dir %s: %w", dir, err)
	}

	name := filepath.Base(path)
	logger.Info("watching prompt file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := p.Reload(); err != nil {
				logger.Warn("prompt reload failed", "error", err)
				continue
			}
			logger.Info("prompt reloaded", "path", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("prompt watcher error", "error", err)
		}
	}
}
