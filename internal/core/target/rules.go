package target

import (
	"fmt"
	"regexp"
)

// Category is the closed set of predicate families.
type Category string

const (
	CategoryChat     Category = "chat"     // chat-style service, 403 still means reachable
	CategoryLogin    Category = "login"    // login-gated service
	CategoryRedirect Category = "redirect" // redirect-heavy service
	CategoryCustom   Category = "custom"
)

// Rule 是一条声明式的判定规则: 先检查响应体的否决标记, 再检查状态码。
type Rule struct {
	PassStatuses []int
	// MinStatus/MaxStatus form a half-open range used when PassStatuses is empty.
	MinStatus, MaxStatus int
	FailMarker           *regexp.Regexp
	FailReason           string
}

var redirectOK = []int{200, 301, 302, 307, 308}

var categoryRules = map[Category]Rule{
	CategoryChat: {
		PassStatuses: append(append([]int(nil), redirectOK...), 403),
		FailMarker:   regexp.MustCompile(`(?i)unsupported_country|unsupported[ _-]?region|not supported in your (country|region)`),
		FailReason:   "region unsupported",
	},
	CategoryLogin: {
		PassStatuses: append(append([]int(nil), redirectOK...), 403),
		FailMarker:   regexp.MustCompile(`(?i)\b(blocked|banned)\b`),
		FailReason:   "blocked",
	},
	CategoryRedirect: {
		PassStatuses: redirectOK,
		FailMarker:   regexp.MustCompile(`(?i)not available in (your )?(country|region)`),
		FailReason:   "not available in region",
	},
	CategoryCustom: {
		MinStatus: 200,
		MaxStatus: 400,
	},
}

// Evaluate applies the rule: content override first, then status membership.
func (r Rule) Evaluate(status int, body []byte) (bool, string) {
	if r.FailMarker != nil && r.FailMarker.Match(body) {
		return false, fmt.Sprintf("status %d, body indicates %s", status, r.FailReason)
	}
	if len(r.PassStatuses) > 0 {
		for _, s := range r.PassStatuses {
			if s == status {
				return true, fmt.Sprintf("status %d", status)
			}
		}
		return false, fmt.Sprintf("unexpected status %d", status)
	}
	if status >= r.MinStatus && status < r.MaxStatus {
		return true, fmt.Sprintf("status %d", status)
	}
	return false, fmt.Sprintf("unexpected status %d", status)
}
