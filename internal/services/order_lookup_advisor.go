package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shop-assistant/internal/models"
	"shop-assistant/internal/repositories"
)

const recentOrdersLimit = 5

var orderStatusLabels = map[string]string{
	models.OrderPending:    "Chờ thanh toán",
	models.OrderPaid:       "Đã thanh toán",
	models.OrderConfirmed:  "Đã xác nhận",
	models.OrderProcessing: "Đang xử lý",
	models.OrderShipped:    "Đang giao hàng",
	models.OrderDelivered:  "Đã giao thành công",
	models.OrderCancelled:  "Đã hủy",
}

// OrderStatusLabel returns the Vietnamese label for a status
func OrderStatusLabel(status string) string {
	if label, ok := orderStatusLabels[status]; ok {
		return label
	}
	return status
}

// OrderLookupAdvisor reports the caller's own orders. Guests are asked to log
// in and the repository is never touched for them.
type OrderLookupAdvisor struct {
	orders repositories.OrderRepository
	logger *zap.Logger
}

func NewOrderLookupAdvisor(orders repositories.OrderRepository, logger *zap.Logger) *OrderLookupAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderLookupAdvisor{
		orders: orders,
		logger: logger.With(zap.String("component", "order_lookup_advisor")),
	}
}

func (a *OrderLookupAdvisor) Advise(ctx context.Context, req AdviceRequest) (*AdviceResult, error) {
	if req.Identity.IsGuest() {
		return staticAnswer(req, LoginRequiredMessage), nil
	}
	userID := req.Identity.UserID

	if code := req.Entities.OrderCode; code != "" {
		order, err := a.orders.FindOrder(ctx, userID, code)
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return staticAnswer(req, fmt.Sprintf(
				"Mình không tìm thấy đơn hàng #%s trong tài khoản của bạn. Bạn kiểm tra lại mã đơn giúp mình nhé!", code)), nil
		}
		if err != nil {
			return nil, err
		}
		return staticAnswer(req, formatOrderDetails(*order)), nil
	}

	orders, err := a.orders.RecentOrders(ctx, userID, recentOrdersLimit)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return staticAnswer(req, "Bạn chưa có đơn hàng nào.\n\nHãy khám phá các sản phẩm của "+storeName+" và đặt hàng đầu tiên nhé!"), nil
	}
	return staticAnswer(req, formatOrderList(orders)), nil
}

func formatOrderList(orders []models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Đây là %d đơn hàng gần nhất của bạn:\n\n", len(orders))
	for i, o := range orders {
		fmt.Fprintf(&b, "**%d. Đơn hàng #%s**\n", i+1, o.ShortCode())
		fmt.Fprintf(&b, "• Trạng thái: %s\n", OrderStatusLabel(o.Status))
		if !o.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "• Ngày đặt: %s\n", o.CreatedAt.Format("02/01/2006"))
		}
		fmt.Fprintf(&b, "• Tổng tiền: %s\n", models.FormatPrice(o.TotalPrice))
		fmt.Fprintf(&b, "• Số sản phẩm: %d\n\n", len(o.Items))
	}
	b.WriteString("Bạn muốn xem chi tiết đơn hàng nào? Hãy cho mình biết mã đơn nhé!")
	return b.String()
}

func formatOrderDetails(o models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thông tin đơn hàng #%s\n\n", o.ShortCode())
	fmt.Fprintf(&b, "**Trạng thái:** %s\n", OrderStatusLabel(o.Status))
	if o.TrackingNumber != "" {
		fmt.Fprintf(&b, "**Mã vận đơn:** %s\n", o.TrackingNumber)
	}
	if !o.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "**Ngày đặt:** %s\n", o.CreatedAt.Format("02/01/2006"))
	}
	fmt.Fprintf(&b, "**Tổng tiền:** %s\n", models.FormatPrice(o.TotalPrice))

	if len(o.Items) > 0 {
		b.WriteString("\n**Sản phẩm:**\n")
		for i, item := range o.Items {
			line := item.ProductName
			if item.Color != "" {
				line += " - " + item.Color
			}
			if item.Size != "" {
				line += " - Size " + item.Size
			}
			fmt.Fprintf(&b, "%d. %s x%d\n", i+1, line, item.Quantity)
		}
	}

	switch o.Status {
	case models.OrderShipped:
		b.WriteString("\nĐơn hàng đang trên đường giao đến bạn!")
	case models.OrderDelivered:
		b.WriteString("\nCảm ơn bạn đã mua hàng tại " + storeName + "!")
	case models.OrderPaid, models.OrderConfirmed, models.OrderProcessing:
		b.WriteString("\nĐơn hàng đang được xử lý, sẽ giao trong 1-2 ngày.")
	case models.OrderPending:
		b.WriteString("\nĐơn hàng đang chờ thanh toán.")
	case models.OrderCancelled:
		b.WriteString("\nĐơn hàng đã bị hủy.")
	}
	return b.String()
}
