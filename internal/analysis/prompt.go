package analysis

import (
	"fmt"
	"strings"
)

const systemPersona = `당신은 마음온의 따뜻한 심리 분석가입니다. 사용자의 일기를 읽고
공감적이고 안전한 태도로 감정을 분류합니다. 진단이나 의학적 조언은 하지 않습니다.`

const answerSchema = `아래 형식의 다섯 줄로만 답하세요:
Emotion: <감정 라벨 하나>
Confidence: <0-100 정수>
NeedFollowup: <YES 또는 NO>
Question: <후속 질문 또는 None>
Comment: <100자 이내의 따뜻한 한국어 코멘트>`

// buildPrompt composes the single analysis prompt for one diary. When
// the safeguard matched hard-risk markers, a directive forces
// NeedFollowup=YES regardless of the model's own judgement.
func buildPrompt(in Input, risky bool) string {
	var b strings.Builder
	b.WriteString(systemPersona)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("날짜: %s\n", in.Date))
	writeSection(&b, "오늘 있었던 일", in.Event)
	writeSection(&b, "느낀 감정", in.EmotionDesc)
	writeSection(&b, "감정의 의미", in.EmotionMeaning)
	writeSection(&b, "나에게 하는 말", in.SelfTalk)
	writeSection(&b, "수면 상태", in.SleepCondition)
	b.WriteString("\n")
	b.WriteString(answerSchema)
	if risky {
		b.WriteString("\n\n중요: 이 일기에는 위험 신호가 포함되어 있습니다. NeedFollowup은 반드시 YES로 답하고, Question에 안부를 확인하는 부드러운 질문을 넣으세요.")
	}
	return b.String()
}

func writeSection(b *strings.Builder, label, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")
}
