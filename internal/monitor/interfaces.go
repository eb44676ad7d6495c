package monitor

import (
	"context"
	"time"

	"github.com/yuribraga17/bot-fiscal-preco/internal/models"
)

// ProductStore é o contrato de persistência consumido pelo monitor
type ProductStore interface {
	FindDueForCheck(interval time.Duration, max int) ([]models.Product, error)
	FindByID(id int64) (*models.Product, error)
	FindActive() ([]models.Product, error)
	UpdatePrice(id int64, newPrice float64) (*models.PriceUpdate, error)
	IncrementError(id int64, message string) error
	ReactivateStaleErrored() (int64, error)
	AppendHistory(productID int64, price float64, changePercent *float64, source string) error
	PurgeHistoryOlderThan(days int) (int64, error)
	Backup() (string, error)
}

// Scraper é a parte do scraper que o monitor usa
type Scraper interface {
	ScrapePrice(ctx context.Context, url string) models.ScrapeResult
}

// Notifier entrega notificações decididas pelo monitor. A supressão por
// cooldown acontece dentro do notifier e não é tratada como erro aqui.
type Notifier interface {
	NotifyTargetReached(p *models.Product, newPrice, oldPrice float64) error
	NotifyPriceDrop(p *models.Product, newPrice, oldPrice, changePercent float64) error
	NotifyPriceIncrease(p *models.Product, newPrice, oldPrice, changePercent float64) error
	NotifySummary(summary models.CheckSummary) error
}
