package guard

import "regexp"

// attackPattern pairs a label (used in audit details) with a compiled regex.
type attackPattern struct {
	name string
	re   *regexp.Regexp
}

// attackPatterns are matched against the request path and query string.
// A single match rejects the request and bans the source address.
var attackPatterns = []attackPattern{
	{"sql_injection", regexp.MustCompile(`(?i)(\bunion\b[\s/*]+\bselect\b|\bselect\b[\s/*]+.*\bfrom\b|\binsert\b[\s/*]+\binto\b|\bdrop\b[\s/*]+\btable\b|'\s*(or|and)\s+'?\d|--\s*$|;\s*--)`)},
	{"script_injection", regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|\bon(error|load|click|mouseover)\s*=|<\s*iframe|document\s*\.\s*cookie)`)},
	{"path_traversal", regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.%2e/)`)},
	{"shell_metacharacters", regexp.MustCompile("(;\\s*(cat|ls|rm|wget|curl|sh|bash)\\b|\\|\\s*(cat|ls|rm|wget|curl|sh|bash)\\b|`[^`]*`|\\$\\([^)]*\\))")},
}

// botAgentMarkers flag automated clients. Matches are logged but never
// blocked; legitimate OS detection probes sometimes look bot-like.
var botAgentMarkers = []string{
	"bot", "crawler", "spider", "scanner", "curl", "wget",
}

// matchAttackPattern returns the name of the first matching pattern, if any.
func matchAttackPattern(target string) (string, bool) {
	for _, p := range attackPatterns {
		if p.re.MatchString(target) {
			return p.name, true
		}
	}
	return "", false
}
