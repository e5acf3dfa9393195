package analysis

import (
	"strings"
	"testing"
)

func TestParseResponseFullSchema(t *testing.T) {
	raw := `Emotion: 슬픔
Confidence: 72
NeedFollowup: YES
Question: 요즘 잠은 잘 주무시나요?
Comment: 힘든 하루였군요. 스스로를 잘 돌봐주세요.`

	res := ParseResponse(raw)
	if res.Emotion != "슬픔" {
		t.Fatalf("emotion: %q", res.Emotion)
	}
	if res.Confidence != 72 {
		t.Fatalf("confidence: %d", res.Confidence)
	}
	if !res.NeedFollowup {
		t.Fatal("followup should be YES")
	}
	if res.Question != "요즘 잠은 잘 주무시나요?" {
		t.Fatalf("question: %q", res.Question)
	}
	if res.Comment != "힘든 하루였군요. 스스로를 잘 돌봐주세요." {
		t.Fatalf("comment: %q", res.Comment)
	}
}

func TestParseResponseDefaults(t *testing.T) {
	raw := "모델이 형식을 무시하고 쓴 자유 서술 응답입니다."
	res := ParseResponse(raw)
	if res.Emotion != "평온" {
		t.Fatalf("default emotion: %q", res.Emotion)
	}
	if res.Confidence != 80 {
		t.Fatalf("default confidence: %d", res.Confidence)
	}
	if res.NeedFollowup {
		t.Fatal("default followup must be NO")
	}
	if res.Comment != raw {
		t.Fatalf("comment should fall back to raw output: %q", res.Comment)
	}
}

func TestParseResponseCommentTruncation(t *testing.T) {
	long := strings.Repeat("가", 250)
	res := ParseResponse("Comment: " + long)
	if got := len([]rune(res.Comment)); got != 100 {
		t.Fatalf("comment rune length = %d, want 100", got)
	}
}

func TestParseResponseClampsConfidence(t *testing.T) {
	res := ParseResponse("Confidence: 400")
	if res.Confidence != 100 {
		t.Fatalf("confidence should clamp to 100, got %d", res.Confidence)
	}
}

func TestParseResponseMarkdownDecorations(t *testing.T) {
	raw := "**Emotion**: 불안\n**NeedFollowup**: NO"
	res := ParseResponse(raw)
	if res.Emotion != "불안" {
		t.Fatalf("decorated emotion: %q", res.Emotion)
	}
}

func TestMoodScoreFor(t *testing.T) {
	if s := moodScoreFor("행복", false); s != 9 {
		t.Fatalf("행복 score: %d", s)
	}
	if s := moodScoreFor("우울", false); s != 2 {
		t.Fatalf("우울 score: %d", s)
	}
	if s := moodScoreFor("미지의감정", false); s != 5 {
		t.Fatalf("unknown label score: %d", s)
	}
	if s := moodScoreFor("행복", true); s != 2 {
		t.Fatalf("risk floor score: %d", s)
	}
}
