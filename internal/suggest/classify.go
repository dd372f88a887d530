// Package suggest classifies a query into a kind of coding task and turns
// relevance scores into ranked, explained file suggestions.
package suggest

import (
	"regexp"
	"sort"
	"strings"
)

// TaskType is the kind of work a query describes.
type TaskType string

const (
	Bugfix        TaskType = "bugfix"
	Feature       TaskType = "feature"
	Refactor      TaskType = "refactor"
	Test          TaskType = "test"
	Config        TaskType = "config"
	Documentation TaskType = "documentation"
	Performance   TaskType = "performance"
	Security      TaskType = "security"
)

// TaskTypes lists every task type in tie-break order.
var TaskTypes = []TaskType{Security, Performance, Test, Bugfix, Refactor, Config, Documentation, Feature}

// Risk is how dangerous a task type is to get wrong.
type Risk string

const (
	RiskCritical Risk = "critical"
	RiskHigh     Risk = "high"
	RiskMedium   Risk = "medium"
	RiskLow      Risk = "low"
)

var taskRisk = map[TaskType]Risk{
	Security:      RiskCritical,
	Performance:   RiskHigh,
	Refactor:      RiskHigh,
	Bugfix:        RiskMedium,
	Feature:       RiskMedium,
	Config:        RiskMedium,
	Test:          RiskLow,
	Documentation: RiskLow,
}

// RiskOf returns the fixed risk level of a task type.
func RiskOf(t TaskType) Risk {
	if r, ok := taskRisk[t]; ok {
		return r
	}
	return RiskMedium
}

// specificity rewards narrow task vocabularies over broad ones.
var specificity = map[TaskType]float64{
	Security:      1.5,
	Performance:   1.3,
	Test:          1.2,
	Bugfix:        1.2,
	Refactor:      1.1,
	Config:        1.1,
	Documentation: 1.0,
	Feature:       0.8,
}

// DefaultConfidence is reported when no pattern matches and the query falls
// back to Feature.
const DefaultConfidence = 0.3

var taskPatterns = map[TaskType][]string{
	Bugfix: {
		`fix(es|ed|ing)?`, `bugs?`, `errors?`, `crash(es|ed|ing)?`, `broken`, `fail(s|ed|ing|ure)?`,
		`issues?`, `debug(ging)?`, `exceptions?`, `wrong`, `not working`, `regression`,
	},
	Feature: {
		`add(s|ed|ing)?`, `implement(s|ed|ing|ation)?`, `create`, `new`, `build`, `support`,
		`introduce`, `feature`, `enable`, `allow`,
	},
	Refactor: {
		`refactor(s|ed|ing)?`, `restructur(e|ing)`, `clean ?up`, `simplif(y|ied)`, `extract`,
		`rename`, `reorganiz(e|ing)`, `decouple`, `split`, `dedup(licate)?`, `technical debt`,
	},
	Test: {
		`tests?`, `testing`, `unit tests?`, `spec`, `coverage`, `mocks?`, `fixtures?`,
		`assert(ion)?s?`, `e2e`, `integration tests?`,
	},
	Config: {
		`config(uration)?`, `settings?`, `env(ironment)?( variables?)?`, `setup`, `deploy(ment)?`,
		`docker(file)?`, `yaml`, `json config`, `flags?`, `build script`,
	},
	Documentation: {
		`docs?`, `documentation`, `document`, `readme`, `comments?`, `explain`, `describe`,
		`guide`, `tutorial`, `changelog`,
	},
	Performance: {
		`performance`, `perf`, `slow(er|ness)?`, `fast(er)?`, `speed( up)?`, `optimi[sz](e|ation|ing)`,
		`latency`, `memory( leak)?`, `cach(e|ing)`, `bottleneck`, `throughput`, `profil(e|ing)`,
	},
	Security: {
		`security`, `secure`, `vulnerab(le|ility|ilities)`, `auth(entication|orization)?`, `xss`,
		`csrf`, `injection`, `sanitiz(e|ation)`, `encrypt(ion)?`, `passwords?`, `tokens?`,
		`permissions?`, `exploit`, `cve`,
	},
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

var compiledPatterns = compilePatterns()

func compilePatterns() map[TaskType][]compiledPattern {
	out := make(map[TaskType][]compiledPattern, len(taskPatterns))
	for t, pats := range taskPatterns {
		for _, p := range pats {
			out[t] = append(out[t], compiledPattern{source: p, re: regexp.MustCompile(`\b` + p + `\b`)})
		}
	}
	return out
}

// Analysis is the classification of one query.
type Analysis struct {
	Type       TaskType             `json:"type"`
	Confidence float64              `json:"confidence"`
	Risk       Risk                 `json:"risk"`
	Keywords   []string             `json:"keywords,omitempty"`
	Scores     map[TaskType]float64 `json:"scores,omitempty"`
}

// Classify picks the task type whose patterns score highest, where a
// type's score is its matched pattern count times its specificity.
// Confidence is the winner's share of all matched weight.
func Classify(query string) Analysis {
	q := strings.ToLower(query)
	scores := make(map[TaskType]float64)
	matched := make(map[TaskType][]string)
	var total float64
	for _, t := range TaskTypes {
		for _, p := range compiledPatterns[t] {
			if m := p.re.FindString(q); m != "" {
				matched[t] = append(matched[t], m)
			}
		}
		if n := len(matched[t]); n > 0 {
			scores[t] = float64(n) * specificity[t]
			total += scores[t]
		}
	}

	if total == 0 {
		return Analysis{Type: Feature, Confidence: DefaultConfidence, Risk: RiskOf(Feature)}
	}

	best := Feature
	bestScore := -1.0
	for _, t := range TaskTypes {
		if s := scores[t]; s > bestScore {
			best, bestScore = t, s
		}
	}
	kw := append([]string(nil), matched[best]...)
	sort.Strings(kw)
	return Analysis{
		Type:       best,
		Confidence: bestScore / total,
		Risk:       RiskOf(best),
		Keywords:   kw,
		Scores:     scores,
	}
}
