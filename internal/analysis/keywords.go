package analysis

import (
	"encoding/json"
	"os"
	"strings"
)

// riskMarkers are hard-risk tokens checked deterministically before any
// model call. Matching any of them forces a followup directive into the
// prompt and floors the mood score.
var riskMarkers = []string{
	"자살", "죽고 싶", "죽고싶", "자해", "사라지고 싶", "사라지고싶",
	"죽어버리", "살기 싫", "살기싫", "끝내고 싶", "끝내고싶",
	"suicide", "kill myself", "self-harm", "self harm", "end it all",
}

// HasRiskMarkers reports whether any hard-risk token appears in the
// given texts. Matching is plain substring over lowercased input.
func HasRiskMarkers(texts ...string) bool {
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, m := range riskMarkers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

// keywordTable maps keyword -> emotion label -> observed frequency. The
// fallback classifier votes with it when both LLM backends fail.
type keywordTable map[string]map[string]int

var defaultTable = keywordTable{
	"기쁘":   {"기쁨": 9},
	"행복":   {"행복": 9},
	"좋았":   {"기쁨": 6, "평온": 3},
	"감사":   {"감사": 8},
	"뿌듯":   {"기쁨": 7},
	"편안":   {"평온": 8},
	"차분":   {"평온": 7},
	"슬프":   {"슬픔": 9},
	"슬펐":   {"슬픔": 8},
	"눈물":   {"슬픔": 7},
	"우울":   {"우울": 9},
	"무기력":  {"우울": 7, "지침": 4},
	"불안":   {"불안": 9},
	"걱정":   {"불안": 7},
	"초조":   {"불안": 6},
	"화가":   {"분노": 8},
	"짜증":   {"분노": 7},
	"분노":   {"분노": 9},
	"무서":   {"두려움": 8},
	"두려":   {"두려움": 8},
	"피곤":   {"지침": 8},
	"지쳤":   {"지침": 8},
	"외로":   {"외로움": 8},
	"혼자":   {"외로움": 5},
	"happy": {"기쁨": 7},
	"sad":   {"슬픔": 7},
	"tired": {"지침": 7},
	"angry": {"분노": 7},
}

var fallbackComments = map[string]string{
	"기쁨":  "기쁜 하루를 보내셨군요. 그 마음을 오래 간직하시길 바라요.",
	"행복":  "행복한 순간을 기록해 주셔서 고마워요. 내일도 응원할게요.",
	"감사":  "감사한 마음이 전해져요. 오늘 하루도 수고 많으셨어요.",
	"평온":  "차분한 하루였네요. 꾸준히 기록하는 모습이 멋져요.",
	"슬픔":  "슬픈 마음을 적어주셔서 고마워요. 혼자가 아니라는 걸 기억해 주세요.",
	"우울":  "무거운 하루였군요. 작은 휴식이라도 꼭 챙기시길 바라요.",
	"불안":  "불안한 마음이 느껴져요. 천천히 숨을 고르며 쉬어가도 괜찮아요.",
	"분노":  "화가 나는 일이 있었군요. 감정을 적어낸 것만으로도 큰 걸음이에요.",
	"두려움": "두려운 마음을 꺼내놓기 쉽지 않았을 텐데, 잘하셨어요.",
	"지침":  "많이 지치셨군요. 오늘은 스스로에게 조금 너그러워지세요.",
	"외로움": "외로운 하루였네요. 이 기록이 작은 위로가 되길 바라요.",
}

const defaultEmotion = "평온"

// loadKeywordTable reads an optional persisted frequency table from
// KEYWORD_TABLE_PATH, merging over the built-in defaults.
func loadKeywordTable() keywordTable {
	path := os.Getenv("KEYWORD_TABLE_PATH")
	if path == "" {
		return defaultTable
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return defaultTable
	}
	loaded := keywordTable{}
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return defaultTable
	}
	merged := keywordTable{}
	for k, v := range defaultTable {
		merged[k] = v
	}
	for k, v := range loaded {
		merged[k] = v
	}
	return merged
}

// classifyByKeywords runs the deterministic keyword-vote fallback,
// returning an emotion label and a canned comment.
func classifyByKeywords(table keywordTable, texts ...string) (string, string) {
	votes := map[string]int{}
	joined := strings.ToLower(strings.Join(texts, "\n"))
	for keyword, labels := range table {
		if !strings.Contains(joined, keyword) {
			continue
		}
		for label, freq := range labels {
			votes[label] += freq
		}
	}
	best := defaultEmotion
	bestVotes := 0
	for label, n := range votes {
		if n > bestVotes || (n == bestVotes && label < best && bestVotes > 0) {
			best = label
			bestVotes = n
		}
	}
	comment, ok := fallbackComments[best]
	if !ok {
		comment = fallbackComments[defaultEmotion]
	}
	return best, comment
}
