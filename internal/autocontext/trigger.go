package autocontext

import (
	"strings"
	"unicode"
)

// inspectionVerbs always trigger, and lower the confidence threshold. Only
// whole words count, so "checkout" or "reviewer" do not.
var inspectionVerbs = wordSet(
	"inspect", "inspects", "inspected", "inspecting", "inspection",
	"analyze", "analyzes", "analyzed", "analyzing",
	"analyse", "analyses", "analysed", "analysing", "analysis",
	"examine", "examines", "examined", "examining",
	"review", "reviews", "reviewed", "reviewing",
	"check", "checks", "checked", "checking",
	"explore", "explores", "explored", "exploring",
	"investigate", "investigates", "investigated", "investigating",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var actionVerbs = map[string]struct{}{
	"fix": {}, "debug": {}, "implement": {}, "add": {}, "create": {}, "refactor": {},
	"update": {}, "change": {}, "modify": {}, "optimize": {}, "improve": {}, "test": {},
	"write": {}, "build": {}, "remove": {}, "delete": {}, "rename": {}, "migrate": {},
	"configure": {}, "document": {}, "secure": {}, "find": {}, "show": {}, "look": {},
	"understand": {}, "explain": {}, "trace": {}, "handle": {}, "support": {}, "speed": {},
}

var codingIndicators = map[string]struct{}{
	"function": {}, "functions": {}, "class": {}, "classes": {}, "method": {}, "methods": {},
	"file": {}, "files": {}, "module": {}, "modules": {}, "component": {}, "components": {},
	"code": {}, "bug": {}, "bugs": {}, "error": {}, "errors": {}, "api": {}, "endpoint": {},
	"endpoints": {}, "test": {}, "tests": {}, "config": {}, "configuration": {}, "database": {},
	"query": {}, "queries": {}, "variable": {}, "variables": {}, "import": {}, "imports": {},
	"handler": {}, "handlers": {}, "service": {}, "services": {}, "route": {}, "routes": {},
	"model": {}, "models": {}, "schema": {}, "package": {}, "library": {}, "dependency": {},
	"dependencies": {}, "auth": {}, "login": {}, "cache": {}, "parser": {}, "interface": {},
	"struct": {}, "type": {}, "types": {}, "implementation": {}, "logic": {}, "crash": {},
}

// Trigger is the outcome of keyword detection on one utterance.
type Trigger struct {
	Triggered  bool   `json:"triggered"`
	Inspection bool   `json:"inspection"`
	Verb       string `json:"verb,omitempty"`
	Indicator  string `json:"indicator,omitempty"`
}

// Detect decides whether an utterance asks for code context. Inspection
// verbs always trigger; other action verbs need at least minWords words
// and a coding indicator term.
func Detect(input string, minWords int) Trigger {
	words := splitWords(input)
	for _, w := range words {
		if _, ok := inspectionVerbs[w]; ok {
			return Trigger{Triggered: true, Inspection: true, Verb: w}
		}
	}
	if len(words) < minWords {
		return Trigger{}
	}

	var tr Trigger
	for _, w := range words {
		if _, ok := actionVerbs[w]; ok && tr.Verb == "" {
			tr.Verb = w
		}
		if ind := indicator(w); ind != "" && tr.Indicator == "" {
			tr.Indicator = ind
		}
	}
	tr.Triggered = tr.Verb != "" && tr.Indicator != ""
	return tr
}

// indicator reports whether a word marks the utterance as about code: a
// known term, a file name with an extension, or a call like "parse()".
func indicator(w string) string {
	if _, ok := codingIndicators[w]; ok {
		return w
	}
	if strings.HasSuffix(w, "()") {
		return w
	}
	if i := strings.LastIndexByte(w, '.'); i > 0 && i < len(w)-1 {
		ext := w[i+1:]
		if len(ext) <= 4 && isAlpha(ext) {
			return w
		}
	}
	return ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// splitWords lowercases input and splits it on anything that cannot be part
// of an identifier, file name, or call.
func splitWords(input string) []string {
	fields := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '/' || r == '(' || r == ')')
	})
	words := fields[:0]
	for _, f := range fields {
		// sentence punctuation
		if f = strings.Trim(f, "."); f != "" {
			words = append(words, f)
		}
	}
	return words
}
