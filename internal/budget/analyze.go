package budget

import (
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/tokens"
)

// Level is a coarse health rating of context utilization.
type Level string

const (
	Healthy  Level = "healthy"
	Moderate Level = "moderate"
	Warning  Level = "warning"
	Critical Level = "critical"
)

// Utilization cutoffs, in percent.
const (
	CriticalAt = 90.0
	WarningAt  = 80.0
	ModerateAt = 60.0
)

// LevelFor maps a utilization percentage to a Level.
func LevelFor(utilization float64) Level {
	switch {
	case utilization >= CriticalAt:
		return Critical
	case utilization >= WarningAt:
		return Warning
	case utilization >= ModerateAt:
		return Moderate
	}
	return Healthy
}

// Analysis is a point-in-time measurement of a session's context.
type Analysis struct {
	Model          string  `json:"model"`
	Limit          int     `json:"limit"`
	MessageTokens  int     `json:"messageTokens"`
	FileTokens     int     `json:"fileTokens"`
	CurrentTokens  int     `json:"currentTokens"`
	Utilization    float64 `json:"utilization"` // percent
	Status         Level   `json:"status"`
	FileCount      int     `json:"fileCount"`
	MessageCount   int     `json:"messageCount"`
	LargestFile    string  `json:"largestFile,omitempty"`
	LargestFileTok int     `json:"largestFileTokens,omitempty"`
}

// MessageTokens estimates the token cost of a transcript.
func MessageTokens(messages []model.Message) int {
	n := 0
	for _, msg := range messages {
		n += tokens.Estimate(msg.Content)
	}
	return n
}

// FileTokens sums the token estimates of the file context.
func FileTokens(files []model.ContextFile) int {
	n := 0
	for _, f := range files {
		n += f.Tokens
	}
	return n
}

// Analyze measures messages plus file context against model's limit.
func (m *Manager) Analyze(messages []model.Message, files []model.ContextFile, modelName string) Analysis {
	modelName = m.ResolveModel(modelName)
	a := Analysis{
		Model:         modelName,
		Limit:         m.Limit(modelName),
		MessageTokens: MessageTokens(messages),
		FileTokens:    FileTokens(files),
		FileCount:     len(files),
		MessageCount:  len(messages),
	}
	a.CurrentTokens = a.MessageTokens + a.FileTokens
	a.Utilization = percent(a.CurrentTokens, a.Limit)
	a.Status = LevelFor(a.Utilization)
	for _, f := range files {
		if f.Tokens > a.LargestFileTok {
			a.LargestFile, a.LargestFileTok = f.Path, f.Tokens
		}
	}
	return a
}
