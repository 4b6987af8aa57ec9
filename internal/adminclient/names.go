package adminclient

import (
	"regexp"

	"github.com/kitade/kita-jobs/internal/domain"
)

// extractedPattern matches the "-> Extracted: <name> (" prefix of a log line.
var extractedPattern = regexp.MustCompile(`-> Extracted: (.+?) \(`)

// ProcessedNames accumulates the distinct names of extracted records across
// polls, in first-seen order. The zero value is ready to use.
type ProcessedNames struct {
	seen  map[string]bool
	names []string
}

// Merge scans a full log snapshot and adds names not seen before. The
// structured extracted field is preferred; older servers only provide the
// message text.
func (p *ProcessedNames) Merge(logs []domain.LogEntry) {
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	for _, entry := range logs {
		name := extractedName(entry)
		if name == "" || p.seen[name] {
			continue
		}
		p.seen[name] = true
		p.names = append(p.names, name)
	}
}

// Names returns a copy of the names collected so far.
func (p *ProcessedNames) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Len returns the number of distinct names.
func (p *ProcessedNames) Len() int {
	return len(p.names)
}

func extractedName(entry domain.LogEntry) string {
	if entry.Extracted != nil && entry.Extracted.Name != "" {
		return entry.Extracted.Name
	}
	if m := extractedPattern.FindStringSubmatch(entry.Message); m != nil {
		return m[1]
	}
	return ""
}
