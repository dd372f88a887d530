package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/autocontext"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/tokens"
)

// Session is the live conversation: an ordered transcript and the file
// context map. Its token usage is mirrored into the budget manager.
type Session struct {
	mu       sync.Mutex
	id       string
	started  time.Time
	model    string
	messages []model.Message
	files    map[string]model.ContextFile
}

func newSession(modelName string, now time.Time) *Session {
	return &Session{
		id:      uuid.NewString(),
		started: now,
		model:   modelName,
		files:   make(map[string]model.ContextFile),
	}
}

// ID identifies the session; it changes on Reset.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Started is when the session began or was last reset.
func (s *Session) Started() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Model is the model whose limit the session is budgeted against.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

// Files returns the file context sorted by path.
func (s *Session) Files() []model.ContextFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedFiles()
}

func (s *Session) sortedFiles() []model.ContextFile {
	out := make([]model.ContextFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Session returns the live session.
func (e *Engine) Session() *Session { return e.session }

// SetModel switches the session's model. Unknown names fall back to the
// default model. File context that no longer fits stays in place and is
// reported by BudgetStatus until pruned.
func (e *Engine) SetModel(name string) string {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = e.budget.ResolveModel(name)
	e.syncConversation()
	if d, err := e.budget.CanAdd(budget.Files, 0, s.model); err == nil && !d.Allowed {
		e.log.Warn("file context exceeds its budget category",
			zap.String("model", s.model),
			zap.Int("overBy", d.OverBy))
	}
	return s.model
}

// AddMessage appends to the transcript, resyncs the conversation category,
// and marks context files mentioned by name as referenced. It reports
// whether the conversation still fits its category.
func (e *Engine) AddMessage(role model.Role, content string) bool {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, model.Message{Role: role, Content: content})
	now := e.now()
	lower := strings.ToLower(content)
	for path, f := range s.files {
		if strings.Contains(lower, strings.ToLower(filepath.Base(path))) {
			f.LastReferenced = now
			s.files[path] = f
		}
	}
	return e.syncConversation()
}

// syncConversation sets the conversation category to the transcript size.
// Callers hold the session lock.
func (e *Engine) syncConversation() bool {
	s := e.session
	fits, _ := e.budget.Set(budget.Conversation, budget.MessageTokens(s.messages), s.model)
	if !fits {
		e.log.Warn("conversation exceeds its budget category", zap.String("model", s.model))
	}
	return fits
}

// AddFile puts the whole file into context as an explicit addition. The
// file is admitted only if it fits the files category; the decision is
// returned either way. Adding a file already present updates its pin and
// reference time without recounting tokens.
func (e *Engine) AddFile(ctx context.Context, path string, pinned bool) (model.ContextFile, budget.Decision, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.root, path)
	}
	path = filepath.Clean(path)

	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	now := e.now()
	if f, ok := s.files[path]; ok {
		f.Pinned = f.Pinned || pinned
		f.LastReferenced = now
		s.files[path] = f
		d, err := e.budget.CanAdd(budget.Files, 0, s.model)
		return f, d, err
	}

	rec, err := e.store.Load(ctx, path)
	if err != nil {
		return model.ContextFile{}, budget.Decision{}, err
	}
	content, err := e.store.ReadContent(path)
	if err != nil {
		return model.ContextFile{}, budget.Decision{}, fmt.Errorf("reading %s: %w", path, err)
	}
	f := model.ContextFile{
		Path:           rec.Path,
		Content:        content,
		Tokens:         tokens.Estimate(content),
		Sections:       []model.SectionKind{model.SectionBody},
		Source:         "explicit",
		Pinned:         pinned,
		AddedAt:        now,
		LastReferenced: now,
	}
	d, err := e.budget.Add(budget.Files, f.Tokens, s.model)
	if err != nil || !d.Allowed {
		return f, d, err
	}
	s.files[path] = f
	e.log.Debug("file added", zap.String("path", e.rel(path)), zap.Int("tokens", f.Tokens), zap.Bool("pinned", pinned))
	return f, d, nil
}

// RemoveFile drops a file from context and releases its tokens. It reports
// whether the file was present.
func (e *Engine) RemoveFile(path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.root, path)
	}
	path = filepath.Clean(path)

	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return false
	}
	delete(s.files, path)
	_, _ = e.budget.Remove(budget.Files, f.Tokens)
	return true
}

// PruneContext evicts files from the session per strategy and removes them
// from the file context.
func (e *Engine) PruneContext(strategy string) (budget.PruneResult, error) {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := e.budget.Prune(s.messages, s.sortedFiles(), s.model, strategy)
	if err != nil {
		return res, err
	}
	for _, pf := range res.Files {
		delete(s.files, pf.Path)
	}
	return res, nil
}

// AnalyzeSession measures the live session against its model.
func (e *Engine) AnalyzeSession() budget.Analysis {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.budget.Analyze(s.messages, s.sortedFiles(), s.model)
}

// AnalyzeAndAutoAdd lets the auto-context controller react to a user
// utterance, adding files to the session within the files budget.
func (e *Engine) AnalyzeAndAutoAdd(ctx context.Context, input string) (autocontext.Result, error) {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.messages
	if n := e.cfg.Budget.Prune.RecentMessages; len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	res, err := e.auto.Analyze(ctx, input, s.files, recent)
	if err != nil {
		return res, err
	}
	for _, f := range res.Files {
		d, err := e.budget.Add(budget.Files, f.Tokens, s.model)
		if err != nil {
			return res, err
		}
		if !d.Allowed {
			delete(s.files, f.Path)
			e.log.Warn("auto-added file no longer fits budget", zap.String("path", e.rel(f.Path)), zap.Int("overBy", d.OverBy))
		}
	}
	return res, nil
}

// Reset clears the transcript, file context, budget usage, and auto-context
// cooldown, and starts a new session ID. Learned patterns survive.
func (e *Engine) Reset() {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.started = e.now()
	s.messages = nil
	s.files = make(map[string]model.ContextFile)
	e.budget.Reset()
	e.auto.ResetCooldown()
}
