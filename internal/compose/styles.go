package compose

import (
	"sort"
	"strings"
)

// Style is an output format the composer can produce.
type Style struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Label       string `json:"label"`
	Instruction string `json:"-"`
}

const DefaultStyle = "summary"

var styles = map[string]Style{
	"official": {
		ID:          "official",
		Title:       "공문",
		Label:       "공문 작성",
		Instruction: "너는 2000자 이내의 공적인 문서를 정중하게 작성하는데 탁월한 전문 작문가야. 사람들이 작성을 어려워 하는 공문서를 작성 해 주는데 탁월해.",
	},
	"minutes": {
		ID:          "minutes",
		Title:       "회의록",
		Label:       "회의록",
		Instruction: "너는 회의 내용을 구조화하여 회의록을 명확하게 작성하는 전문가야. 안건, 논의 내용, 결정사항, 액션 아이템을 항목별로 정리해줘.",
	},
	"summary": {
		ID:          "summary",
		Title:       "요약문",
		Label:       "요약",
		Instruction: "너는 긴 발화를 핵심만 간결히 요약하는 전문가야. 불필요한 중복을 제거하고 핵심 요지, 결정사항, 추후 할 일로 요약해줘.",
	},
	"blog": {
		ID:          "blog",
		Title:       "블로그 글",
		Label:       "블로그",
		Instruction: "너는 친근하고 이해하기 쉬운 블로그 글을 잘 쓰는 전문가야. 적절한 소제목과 리스트를 사용하고 1200자 이내로 작성해줘.",
	},
	"smsNotice": {
		ID:          "smsNotice",
		Title:       "문자 안내문",
		Label:       "문자 안내문",
		Instruction: "너는 상대에게 예의 있고 간결한 문자 공지문을 작성하는 전문가야. 핵심 정보만 포함하고 300자 이내로 작성해줘.",
	},
}

// LookupStyle returns the style for id. Unknown ids fall back to the
// summary style and report false.
func LookupStyle(id string) (Style, bool) {
	s, ok := styles[id]
	if !ok {
		return styles[DefaultStyle], false
	}
	return s, true
}

// Styles lists the known styles ordered by id.
func Styles() []Style {
	out := make([]Style, 0, len(styles))
	for _, s := range styles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BuildPrompt lays out the instruction, source text, requested format and
// optional extra request.
func BuildPrompt(style Style, transcript, instruction string) string {
	var b strings.Builder
	b.WriteString("시스템 지침: ")
	b.WriteString(style.Instruction)
	b.WriteString("\n\n원문: \n")
	b.WriteString(transcript)
	b.WriteString("\n\n요청 형식: ")
	b.WriteString(style.Title)
	b.WriteString("\n지침에 맞게 작성해줘.")
	if instruction = strings.TrimSpace(instruction); instruction != "" {
		b.WriteString("\n\n추가 수정 요청: ")
		b.WriteString(instruction)
	}
	return b.String()
}
