package guard

import "regexp"

// Injection actions.
const (
	ActionOff   = "off"
	ActionLog   = "log"
	ActionWarn  = "warn"
	ActionBlock = "block"
)

type injectionPattern struct {
	name    string
	pattern *regexp.Regexp
}

// InjectionScanner matches user text against known prompt injection
// phrasings.
type InjectionScanner struct {
	patterns []injectionPattern
}

// NewInjectionScanner returns a scanner with the built-in patterns.
func NewInjectionScanner() *InjectionScanner {
	return &InjectionScanner{patterns: []injectionPattern{
		{"ignore_instructions", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?)`)},
		{"role_override", regexp.MustCompile(`(?i)(you are now|from now on you are|pretend (that )?you are|act as if you are)\s+`)},
		{"system_tags", regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`)},
		{"instruction_injection", regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`)},
		{"prompt_exfiltration", regexp.MustCompile(`(?i)(reveal|print|show|repeat)\s+(me\s+)?(your|the)\s+(system\s+prompt|hidden\s+instructions|initial\s+instructions)`)},
		{"null_bytes", regexp.MustCompile(`\x00`)},
	}}
}

// Scan returns the names of the patterns text matches.
func (s *InjectionScanner) Scan(text string) []string {
	if text == "" {
		return nil
	}
	var matches []string
	for _, p := range s.patterns {
		if p.pattern.MatchString(text) {
			matches = append(matches, p.name)
		}
	}
	return matches
}
