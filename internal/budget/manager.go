// Package budget tracks token usage across named categories of a model's
// context window and evicts file context when it runs hot.
package budget

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownCategory is returned for category names not in the config.
var ErrUnknownCategory = errors.New("unknown budget category")

// ErrUnknownStrategy is returned for pruning strategies not in the config.
var ErrUnknownStrategy = errors.New("unknown pruning strategy")

// Decision is the outcome of an admission check. It is always returned,
// never raised; callers choose to proceed, prune, or reject.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Category  string `json:"category"`
	Requested int    `json:"requested"`
	Current   int    `json:"current"`
	Capacity  int    `json:"capacity"`
	// Available is capacity minus current usage before the request.
	Available int `json:"available"`
	// Remaining is what would be left after the request, if allowed.
	Remaining int `json:"remaining"`
	OverBy    int `json:"overBy"`
}

// CategoryStatus is one row of a Status report.
type CategoryStatus struct {
	Name        string  `json:"name"`
	Used        int     `json:"used"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"` // percent
	// OverBy is usage beyond capacity, as after a switch to a smaller model.
	OverBy int `json:"overBy,omitempty"`
}

// Status summarizes usage for one model.
type Status struct {
	Model         string           `json:"model"`
	Limit         int              `json:"limit"`
	Categories    []CategoryStatus `json:"categories"`
	TotalUsed     int              `json:"totalUsed"`
	TotalCapacity int              `json:"totalCapacity"`
	Remaining     int              `json:"remaining"`
	Utilization   float64          `json:"utilization"` // percent of limit
	// OverCapacity sums the categories' OverBy.
	OverCapacity int `json:"overCapacity,omitempty"`
}

// Manager is the single writer for category usage. All methods are safe for
// concurrent use; mutations are serialized by one mutex.
type Manager struct {
	cfg Config
	now func() time.Time
	log *zap.Logger

	mu    sync.Mutex
	usage map[string]int
}

// NewManager validates cfg and returns a Manager with zero usage.
func NewManager(cfg Config, now func() time.Time, log *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("budget config: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	usage := make(map[string]int, len(cfg.Categories))
	for name := range cfg.Categories {
		usage[name] = 0
	}
	return &Manager{cfg: cfg, now: now, log: log, usage: usage}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// Limit returns the token limit for model, falling back to the default
// model for unknown or empty names.
func (m *Manager) Limit(model string) int {
	if l, ok := m.cfg.Models[model]; ok {
		return l
	}
	return m.cfg.Models[m.cfg.DefaultModel]
}

// ResolveModel returns model if it has a configured limit, otherwise the
// default model name.
func (m *Manager) ResolveModel(model string) string {
	if _, ok := m.cfg.Models[model]; ok {
		return model
	}
	return m.cfg.DefaultModel
}

// Capacity returns the token capacity of category for model.
func (m *Manager) Capacity(category, model string) (int, error) {
	f, ok := m.cfg.Categories[category]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownCategory, category)
	}
	return int(math.Floor(float64(m.Limit(model))*f + 1e-9)), nil
}

// CanAdd reports whether tokens fit in category. Equality with capacity is
// allowed.
func (m *Manager) CanAdd(category string, tokens int, model string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decide(category, tokens, model)
}

func (m *Manager) decide(category string, tokens int, model string) (Decision, error) {
	capacity, err := m.Capacity(category, model)
	if err != nil {
		return Decision{}, err
	}
	if tokens < 0 {
		tokens = 0
	}
	cur := m.usage[category]
	d := Decision{
		Category:  category,
		Requested: tokens,
		Current:   cur,
		Capacity:  capacity,
		Available: max(capacity-cur, 0),
		Allowed:   cur+tokens <= capacity,
	}
	if d.Allowed {
		d.Remaining = capacity - cur - tokens
	} else {
		d.OverBy = cur + tokens - capacity
	}
	return d, nil
}

// Add records tokens in category if they fit. A rejected addition leaves
// usage unchanged and is reported through the decision.
func (m *Manager) Add(category string, tokens int, model string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.decide(category, tokens, model)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		m.log.Debug("budget addition rejected",
			zap.String("category", category),
			zap.Int("requested", tokens),
			zap.Int("overBy", d.OverBy))
		return d, nil
	}
	m.usage[category] += d.Requested
	return d, nil
}

// Remove releases tokens from category, flooring usage at zero. It returns
// the new usage.
func (m *Manager) Remove(category string, tokens int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cfg.Categories[category]; !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownCategory, category)
	}
	if tokens < 0 {
		tokens = 0
	}
	m.usage[category] = max(m.usage[category]-tokens, 0)
	return m.usage[category], nil
}

// Set overwrites a category's usage, floored at zero. It reports whether the
// value fits the category's capacity; usage beyond it is kept and shows up
// in Status. Used to resync estimates such as conversation size, never for
// admission.
func (m *Manager) Set(category string, tokens int, model string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	capacity, err := m.Capacity(category, model)
	if err != nil {
		return false, err
	}
	fits := tokens >= 0 && tokens <= capacity
	m.usage[category] = max(tokens, 0)
	return fits, nil
}

// Usage returns the current usage of category.
func (m *Manager) Usage(category string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[category]
}

// Reset zeroes every category.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.usage {
		m.usage[name] = 0
	}
}

// Status reports per-category usage against model's limit.
func (m *Manager) Status(model string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	model = m.ResolveModel(model)
	st := Status{Model: model, Limit: m.Limit(model)}
	for _, name := range sortedNames(m.cfg.Categories) {
		capacity, _ := m.Capacity(name, model)
		used := m.usage[name]
		cs := CategoryStatus{Name: name, Used: used, Capacity: capacity, OverBy: max(used-capacity, 0)}
		if capacity > 0 {
			cs.Utilization = percent(used, capacity)
		}
		st.OverCapacity += cs.OverBy
		st.Categories = append(st.Categories, cs)
		st.TotalUsed += used
		st.TotalCapacity += capacity
	}
	st.Remaining = max(st.Limit-st.TotalUsed, 0)
	st.Utilization = percent(st.TotalUsed, st.Limit)
	return st
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
