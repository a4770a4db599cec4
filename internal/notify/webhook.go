// Package notify delivers operational alerts to an external webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/careflowhq/careflow/internal/domain/models"
)

// Notifier publishes alert payloads.
type Notifier interface {
	SendLowStockAlert(ctx context.Context, products []models.Product) error
}

// WebhookNotifier is a resty-backed Notifier posting JSON to a fixed URL.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
}

// NewWebhookNotifier builds a notifier for the given webhook URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &WebhookNotifier{httpClient: restyClient, url: url}
}

type lowStockItem struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	CurrentStock int    `json:"currentStock"`
	MinStock     int    `json:"minStock"`
	Unit         string `json:"unit"`
}

type lowStockAlert struct {
	Kind  string         `json:"kind"`
	Items []lowStockItem `json:"items"`
}

// SendLowStockAlert posts the products currently at or below their minimum
// stock threshold.
func (n *WebhookNotifier) SendLowStockAlert(ctx context.Context, products []models.Product) error {
	alert := lowStockAlert{Kind: "low_stock", Items: make([]lowStockItem, 0, len(products))}
	for _, p := range products {
		alert.Items = append(alert.Items, lowStockItem{
			ProductID:    p.ID,
			Name:         p.Name,
			CurrentStock: p.CurrentStock,
			MinStock:     p.MinStock,
			Unit:         p.Unit,
		})
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to post low-stock alert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("low-stock alert rejected: status %d", resp.StatusCode())
	}
	return nil
}
