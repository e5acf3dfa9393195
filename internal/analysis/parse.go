package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

// Result is the structured outcome of one analysis run.
type Result struct {
	Emotion      string
	Confidence   int
	NeedFollowup bool
	Question     string
	Comment      string
}

var (
	reEmotion      = regexp.MustCompile(`(?mi)^\s*\**\s*Emotion\s*\**\s*[:：]\s*(.+)$`)
	reConfidence   = regexp.MustCompile(`(?mi)^\s*\**\s*Confidence\s*\**\s*[:：]\s*(\d+)`)
	reNeedFollowup = regexp.MustCompile(`(?mi)^\s*\**\s*NeedFollowup\s*\**\s*[:：]\s*(YES|NO)`)
	reQuestion     = regexp.MustCompile(`(?mi)^\s*\**\s*Question\s*\**\s*[:：]\s*(.+)$`)
	reComment      = regexp.MustCompile(`(?mi)^\s*\**\s*Comment\s*\**\s*[:：]\s*(.+)$`)
)

const commentMaxRunes = 100

// ParseResponse extracts the line-oriented schema from a model reply.
// Missing fields fall back to safe defaults; parsing never fails.
func ParseResponse(raw string) Result {
	res := Result{
		Emotion:    defaultEmotion,
		Confidence: 80,
		Comment:    truncateRunes(strings.TrimSpace(raw), commentMaxRunes),
	}
	if m := reEmotion.FindStringSubmatch(raw); m != nil {
		res.Emotion = strings.TrimSpace(m[1])
	}
	if m := reConfidence.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			if n < 0 {
				n = 0
			}
			if n > 100 {
				n = 100
			}
			res.Confidence = n
		}
	}
	if m := reNeedFollowup.FindStringSubmatch(raw); m != nil {
		res.NeedFollowup = strings.EqualFold(m[1], "YES")
	}
	if m := reQuestion.FindStringSubmatch(raw); m != nil {
		q := strings.TrimSpace(m[1])
		if !strings.EqualFold(q, "none") {
			res.Question = q
		}
	}
	if m := reComment.FindStringSubmatch(raw); m != nil {
		res.Comment = truncateRunes(strings.TrimSpace(m[1]), commentMaxRunes)
	}
	return res
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// moodScoreFor maps an emotion label (and signals) onto the stored
// 1..10 mood score, clamped.
func moodScoreFor(emotion string, risky bool) int {
	scores := map[string]int{
		"기쁨": 8, "행복": 9, "감사": 8, "평온": 6,
		"슬픔": 3, "우울": 2, "불안": 3, "분노": 3,
		"두려움": 3, "지침": 4, "외로움": 3,
	}
	score, ok := scores[emotion]
	if !ok {
		score = 5
	}
	if risky && score > 2 {
		score = 2
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}
