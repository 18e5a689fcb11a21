package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"ordersync/internal/order"
)

// OrdersByStatus fetches one page of orders in a status
func (c *Client) OrdersByStatus(ctx context.Context, q OrdersQuery) (*Page, error) {
	params := url.Values{}
	params.Set("status", string(q.Status))
	params.Set("page", strconv.Itoa(q.Page))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}

	var resp ordersResponse
	err := c.doRequest(ctx, call{
		op:     "ordersByStatus",
		method: http.MethodGet,
		path:   "/orders?" + params.Encode(),
		target: &resp,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		Orders:      make([]order.Order, 0, len(resp.Orders)),
		TotalPages:  resp.TotalPages,
		UnreadCount: resp.UnreadCount,
	}
	for _, raw := range resp.Orders {
		o, err := order.Parse(raw)
		if err != nil {
			page.Rejected++
			c.logger.Warn("dropping malformed order", map[string]interface{}{
				"status": q.Status,
				"page":   q.Page,
				"error":  err.Error(),
			})
			continue
		}
		page.Orders = append(page.Orders, o)
	}

	return page, nil
}

// OrderByID fetches the canonical version of an order
func (c *Client) OrderByID(ctx context.Context, orderID string) (order.Order, error) {
	var resp orderResponse
	err := c.doRequest(ctx, call{
		op:      "orderById",
		orderID: orderID,
		method:  http.MethodGet,
		path:    "/orders/" + url.PathEscape(orderID),
		target:  &resp,
	})
	if err != nil {
		return order.Order{}, err
	}

	o, err := order.Parse(resp.Order)
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// UpdateStatus asks the service to move an order to a new status
func (c *Client) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	return c.doRequest(ctx, call{
		op:      "updateStatus",
		orderID: orderID,
		method:  http.MethodPost,
		path:    "/orders/" + url.PathEscape(orderID) + "/status",
		body:    UpdateStatusRequest{Status: status},
	})
}

// UpdatePaymentStatus settles the payment of an order
func (c *Client) UpdatePaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error {
	return c.doRequest(ctx, call{
		op:      "paymentStatus",
		orderID: orderID,
		method:  http.MethodPut,
		path:    "/orders/" + url.PathEscape(orderID) + "/payment-status",
		body:    UpdatePaymentStatusRequest{PaymentStatus: status},
	})
}

// AcceptOrder claims a confirmed order for a delivery partner. A 409 means
// another partner got there first.
func (c *Client) AcceptOrder(ctx context.Context, partnerID, orderID string) error {
	return c.doRequest(ctx, call{
		op:      "acceptOrder",
		orderID: orderID,
		method:  http.MethodPost,
		path:    "/delivery-partners/" + url.PathEscape(partnerID) + "/orders/" + url.PathEscape(orderID) + "/accept",
	})
}

// MarkRead flags an order as read by a role
func (c *Client) MarkRead(ctx context.Context, orderID string, role order.Role) error {
	return c.doRequest(ctx, call{
		op:      "readStatus",
		orderID: orderID,
		method:  http.MethodPatch,
		path:    "/orders/" + url.PathEscape(orderID) + "/read",
		body:    MarkReadRequest{Role: role},
	})
}
