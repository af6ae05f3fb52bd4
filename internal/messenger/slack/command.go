package slack

import (
	"regexp"
	"strconv"
	"strings"
)

// Reply is an administrator's answer parsed from a Slack thread message or
// button click.
type Reply struct {
	GradeID int64
	Note    string
}

// mentionPattern matches Slack-encoded mentions (<@U12345>) at the start.
var mentionPattern = regexp.MustCompile(`^(?:<@[A-Z0-9]+>\s*)+`) //nolint:gochecknoglobals // compiled regexp

// replyPattern matches an optional "grade" keyword, the grade id and an
// optional note separated by whitespace or punctuation.
var replyPattern = regexp.MustCompile(`(?is)^(?:grade\s*)?#?(\d+)(?:\s*[:,\-.]\s*|\s+|$)(.*)$`) //nolint:gochecknoglobals // compiled regexp

// ParseReply extracts a grade id and note from a thread message such as
// "3", "grade 3: knows the tooling well" or "<@U123> #2 - fine". It reports
// false when the text does not start with a grade id.
func ParseReply(text string) (Reply, bool) {
	stripped := strings.TrimSpace(mentionPattern.ReplaceAllString(strings.TrimSpace(text), ""))
	if stripped == "" {
		return Reply{}, false
	}

	m := replyPattern.FindStringSubmatch(stripped)
	if m == nil {
		return Reply{}, false
	}

	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return Reply{}, false
	}

	return Reply{GradeID: id, Note: strings.TrimSpace(m[2])}, true
}

// parseActionValue reads a grade id from a button value.
func parseActionValue(value string) (Reply, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return Reply{}, false
	}
	return Reply{GradeID: id}, true
}
