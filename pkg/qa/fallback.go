package qa

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var vaguePatterns = []string{
	"do not like each other", "i don't know", "i do not know", "not mentioned", "not provided",
	"not stated", "no idea", "no information", "no details", "insufficient information",
	"unclear", "unable to determine", "cannot determine", "can't say", "no context", "context not found",
	"the transcript does not", "sorry", "unfortunately",
}

var summaryMarkers = []string{
	"what is this video about",
	"what is the topic",
	"main topic",
	"summarize",
	"summary",
}

var questionPrefix = regexp.MustCompile(`(?i)^(who|what|when|where|why|how)\s+(is|are|was|were|do|does|did|has|have|can|could|should|would)?\s*(.*)`)

// IsSummaryQuestion reports whether question asks for an overview.
func IsSummaryQuestion(question string) bool {
	q := strings.ToLower(question)
	for _, m := range summaryMarkers {
		if strings.Contains(q, m) {
			return true
		}
	}
	return false
}

// IsIncomplete reports whether an answer is too short or evasive to show.
func IsIncomplete(answer string) bool {
	if len(strings.TrimSpace(answer)) < 8 {
		return true
	}
	lowered := strings.ToLower(answer)
	for _, p := range vaguePatterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// TitleTopic cuts a video title at its first "|" or "-" separator.
func TitleTopic(title string) string {
	for _, sep := range []string{"|", "-"} {
		if i := strings.Index(title, sep); i >= 0 {
			title = title[:i]
		}
	}
	return strings.TrimSpace(title)
}

// QuestionTopic strips a leading wh-word and auxiliary verb.
func QuestionTopic(question string) string {
	question = strings.TrimSpace(question)
	if m := questionPrefix.FindStringSubmatch(question); m != nil {
		return strings.Trim(strings.TrimSpace(m[3]), " .?")
	}
	return question
}

// WebSearchLinks is the last resort answer.
func WebSearchLinks(query string) string {
	q := url.QueryEscape(query)
	return fmt.Sprintf("Sorry, I couldn't answer from the transcript or Wikipedia.\n"+
		"You can try searching the web:\n"+
		"- [Google](https://www.google.com/search?q=%s)\n"+
		"- [DuckDuckGo](https://duckduckgo.com/?q=%s)", q, q)
}
