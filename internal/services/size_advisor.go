package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SizeAdvisor recommends a size from height and weight. It never names a size
// without at least one figure.
type SizeAdvisor struct {
	guide  *SizeGuide
	llm    LLMProvider
	logger *zap.Logger
}

func NewSizeAdvisor(guide *SizeGuide, llm LLMProvider, logger *zap.Logger) *SizeAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SizeAdvisor{
		guide:  guide,
		llm:    llm,
		logger: logger.With(zap.String("component", "size_advisor")),
	}
}

func (a *SizeAdvisor) Advise(ctx context.Context, req AdviceRequest) (*AdviceResult, error) {
	e := req.Entities
	kind := ChartKindFor(e.Category, req.Query)

	rec, ok := a.guide.Recommend(kind, e.HeightCM, e.WeightKG)
	if !ok {
		return staticAnswer(req, SizeClarifyMessage), nil
	}

	if a.llm == nil {
		return staticAnswer(req, sizeTemplate(e, rec)), nil
	}

	// streamed records what already reached the client
	var streamed strings.Builder
	llmReq := req
	if req.OnToken != nil {
		llmReq.OnToken = func(tok string) {
			streamed.WriteString(tok)
			req.OnToken(tok)
		}
	}

	answer, err := generate(ctx, a.llm, llmReq,
		SizePrompt(req.Query, sizeContext(e, rec), ConversationExcerpt(req.History)),
		"size_recommendation")
	if err == nil && strings.TrimSpace(answer) != "" {
		return &AdviceResult{Answer: answer}, nil
	}
	a.logger.Warn("Size phrasing failed, using template", zap.Error(err))

	template := sizeTemplate(e, rec)
	if streamed.Len() == 0 {
		return staticAnswer(req, template), nil
	}
	// the client already holds a partial answer; the template follows it
	req.OnToken("\n\n" + template)
	return &AdviceResult{Answer: streamed.String() + "\n\n" + template}, nil
}

func describeFigures(e Entities) string {
	var parts []string
	if e.HeightCM > 0 {
		parts = append(parts, fmt.Sprintf("chiều cao %dcm", e.HeightCM))
	}
	if e.WeightKG > 0 {
		parts = append(parts, fmt.Sprintf("cân nặng %dkg", e.WeightKG))
	}
	return strings.Join(parts, " và ")
}

func chartLabel(kind string) string {
	if kind == ChartPants {
		return "quần"
	}
	return "áo"
}

func sizeContext(e Entities, rec SizeRecommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Số đo của khách: %s\n", describeFigures(e))
	fmt.Fprintf(&b, "Bảng size: %s\n", chartLabel(rec.Chart))
	fmt.Fprintf(&b, "Size đề xuất: %s\n", rec.Size)
	if rec.ByHeight != "" {
		fmt.Fprintf(&b, "Theo chiều cao: %s\n", rec.ByHeight)
	}
	if rec.ByWeight != "" {
		fmt.Fprintf(&b, "Theo cân nặng: %s\n", rec.ByWeight)
	}
	if rec.ByHeight != "" && rec.ByWeight != "" && rec.ByHeight != rec.ByWeight {
		b.WriteString("Chiều cao và cân nặng rơi vào hai size khác nhau nên chọn size lớn hơn cho thoải mái.\n")
	}
	b.WriteString("Chính sách: đổi size miễn phí trong 7 ngày đầu.\n\n")
	b.WriteString(FormatRows(rec.Chart, rec.Rows))
	return b.String()
}

func sizeTemplate(e Entities, rec SizeRecommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Với %s, mình gợi ý bạn chọn size **%s** cho %s.", describeFigures(e), rec.Size, chartLabel(rec.Chart))
	if rec.ByHeight != "" && rec.ByWeight != "" && rec.ByHeight != rec.ByWeight {
		fmt.Fprintf(&b, " Theo chiều cao bạn hợp size %s, theo cân nặng là size %s, nên mình chọn size lớn hơn để mặc thoải mái.",
			rec.ByHeight, rec.ByWeight)
	}
	b.WriteString("\n\nNếu mặc không vừa, bạn được đổi size miễn phí trong 7 ngày đầu nhé. Bạn cần mình tư vấn thêm gì không?")
	return b.String()
}
