package services

import (
	"context"
	"fmt"
	"strings"

	"shop-assistant/internal/models"
	"shop-assistant/internal/repositories"
)

// Fixed user-facing copy
const (
	GeneralHelpMessage = "Mình có thể giúp bạn:\n• Tư vấn sản phẩm\n• Tư vấn size\n• Gợi ý phối đồ\n• Tra cứu đơn hàng\n• Thông tin thanh toán & giao hàng\n\nBạn cần mình hỗ trợ gì nhé?"

	ProductNotFoundMessage = "Xin lỗi, mình không tìm thấy sản phẩm phù hợp. Bạn có thể mô tả rõ hơn không?"

	SizeClarifyMessage = "Để tư vấn size chính xác, bạn cho mình biết chiều cao (cm) và cân nặng (kg) của bạn nhé. Nếu có sản phẩm cụ thể, bạn gửi thêm tên sản phẩm để mình xem bảng size phù hợp."

	StyleClarifyMessage = "Mình chưa tìm được món phù hợp để phối. Bạn cho mình biết thêm bạn định mặc vào dịp nào (đi làm, đi chơi, dự tiệc, hẹn hò) và thích phong cách nào nhé?"

	LoginRequiredMessage = "Bạn vui lòng đăng nhập để mình tra cứu đơn hàng nhé. Sau khi đăng nhập, mình có thể hiển thị tất cả đơn hàng của bạn!"
)

const (
	maxSuggestedProducts = 5
	ActionAddToCart      = "add_to_cart"
)

// AdviceRequest is the input shared by every advisor
type AdviceRequest struct {
	Query    string
	Entities Entities
	History  []models.ChatMessage
	Identity models.Identity
	// OnToken, when set, receives the answer incrementally
	OnToken func(string)
}

// AdviceResult is an advisor's answer before it is wrapped into a ChatResponse
type AdviceResult struct {
	Answer            string
	SuggestedProducts []models.ProductRef
	SuggestedAction   *models.ActionSpec
	StoreLocation     *models.StoreLocation
}

// Advisor answers one intent
type Advisor interface {
	Advise(ctx context.Context, req AdviceRequest) (*AdviceResult, error)
}

// staticAnswer delivers a deterministic answer, as a single chunk when streaming
func staticAnswer(req AdviceRequest, answer string) *AdviceResult {
	if req.OnToken != nil {
		req.OnToken(answer)
	}
	return &AdviceResult{Answer: answer}
}

// generate runs the prompt through the LLM, streaming when the request asks for it
func generate(ctx context.Context, llm LLMProvider, req AdviceRequest, messages []Message, op string) (string, error) {
	opts := CompletionOptions{Operation: op}
	if req.OnToken != nil {
		return llm.StreamingCompletion(ctx, messages, req.OnToken, opts)
	}
	return llm.Completion(ctx, messages, opts)
}

// suggestedProducts builds product references from ranked hits, one per
// product, at most max
func suggestedProducts(results []repositories.RetrievalResult, max int) []models.ProductRef {
	seen := make(map[string]bool)
	var refs []models.ProductRef
	for _, r := range results {
		ref, ok := models.ProductRefFromMetadata(r.Metadata)
		if !ok || seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		refs = append(refs, ref)
		if len(refs) == max {
			break
		}
	}
	return refs
}

// productContext renders retrieved propositions as the [Context] block
func productContext(results []repositories.RetrievalResult) string {
	var b strings.Builder
	for i, r := range results {
		name := models.MetaString(r.Metadata, "product_name")
		fmt.Fprintf(&b, "[%d] **%s**", i+1, name)
		if category := models.MetaString(r.Metadata, "category"); category != "" {
			fmt.Fprintf(&b, " (%s)", category)
		}
		min, max := models.MetaFloat(r.Metadata, "min_price"), models.MetaFloat(r.Metadata, "max_price")
		if min > 0 {
			if max > min {
				fmt.Fprintf(&b, " | Giá: %s - %s", models.FormatPrice(min), models.FormatPrice(max))
			} else {
				fmt.Fprintf(&b, " | Giá: %s", models.FormatPrice(min))
			}
		}
		if sizes := models.MetaString(r.Metadata, "sizes"); sizes != "" {
			fmt.Fprintf(&b, " | Size: %s", sizes)
		}
		if colors := models.MetaString(r.Metadata, "colors"); colors != "" {
			fmt.Fprintf(&b, " | Màu: %s", colors)
		}
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(r.Document))
	}
	return strings.TrimSpace(b.String())
}

// lastProductName returns the most recent product suggested in history
func lastProductName(history []models.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if products := history[i].SuggestedProducts; len(products) > 0 {
			return products[0].Name
		}
	}
	return ""
}

// ============================================================================
// General
// ============================================================================

// GeneralAdvisor answers greetings and anything outside the other intents
type GeneralAdvisor struct{}

func (GeneralAdvisor) Advise(_ context.Context, req AdviceRequest) (*AdviceResult, error) {
	return staticAnswer(req, GeneralHelpMessage), nil
}

// ============================================================================
// Return, exchange, payment and shipping policy
// ============================================================================

const (
	returnPolicyText = "**Chính sách đổi trả:**\n" +
		"• Thời hạn: 30 ngày kể từ khi nhận hàng\n" +
		"• Sản phẩm chưa qua sử dụng, còn nguyên tag\n" +
		"• Có hóa đơn mua hàng\n" +
		"• Đổi size miễn phí trong 7 ngày đầu\n\n" +
		"Liên hệ hotline **0364075812** để được hỗ trợ."

	paymentPolicyText = "**Phương thức thanh toán:**\n" +
		"• **PayOS**: chuyển khoản qua ngân hàng nội địa, miễn phí\n" +
		"• **NowPayments**: thanh toán bằng tiền mã hóa (Bitcoin, USDT, ETH...), miễn phí"

	shippingPolicyText = "**Các tùy chọn giao hàng:**\n" +
		"• **Standard delivery**: miễn phí, 2-3 ngày làm việc\n" +
		"• **Next day delivery**: $5, giao trong ngày hôm sau\n" +
		"• **Nominated day delivery**: $10, bạn chọn ngày giao"

	policyOverviewText = "**Thanh toán:** PayOS (ngân hàng) hoặc NowPayments (crypto)\n" +
		"**Giao hàng:** Standard miễn phí (2-3 ngày), Next day $5, Nominated $10\n" +
		"**Đổi trả:** 30 ngày, đổi size miễn phí trong 7 ngày đầu"

	policyClosing = "Bạn cần mình hỗ trợ thêm gì không?"
)

var (
	paymentKeywords  = []string{"thanh toán", "payment", "pay", "crypto", "bitcoin", "payos", "nowpayments", "chuyển khoản"}
	shippingKeywords = []string{"giao hàng", "shipping", "ship", "delivery", "vận chuyển", "phí ship"}
	returnKeywords   = []string{"đổi trả", "đổi", "trả", "hoàn tiền", "hoàn", "refund", "return", "bảo hành", "đổi size"}
)

// ReturnExchangeAdvisor answers policy questions from static copy
type ReturnExchangeAdvisor struct{}

func (ReturnExchangeAdvisor) Advise(_ context.Context, req AdviceRequest) (*AdviceResult, error) {
	return staticAnswer(req, PolicyAnswer(req.Query)), nil
}

// PolicyAnswer selects the policy sections the query asks about
func PolicyAnswer(query string) string {
	padded := " " + normalizeForMatch(strings.ToLower(query)) + " "

	var sections []string
	if countPhrases(padded, returnKeywords) > 0 {
		sections = append(sections, returnPolicyText)
	}
	if countPhrases(padded, paymentKeywords) > 0 {
		sections = append(sections, paymentPolicyText)
	}
	if countPhrases(padded, shippingKeywords) > 0 {
		sections = append(sections, shippingPolicyText)
	}
	if len(sections) == 0 {
		sections = append(sections, policyOverviewText)
	}
	sections = append(sections, policyClosing)
	return strings.Join(sections, "\n\n")
}
