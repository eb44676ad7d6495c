package models

import "time"

// MaxErrorCount é o limite de falhas consecutivas antes do produto ser desativado
const MaxErrorCount = 5

// Origem de um registro de histórico de preço
const (
	HistorySourceScraping = "scraping"
	HistorySourceInitial  = "initial"
)

// Product representa um produto sendo monitorado
type Product struct {
	ID             int64      `db:"id"`
	URL            string     `db:"url"`
	Name           string     `db:"name"`
	CurrentPrice   float64    `db:"current_price"` // 0 = nunca verificado
	LastPrice      *float64   `db:"last_price"`    // nil antes da segunda verificação
	TargetPrice    float64    `db:"target_price"`
	PromoThreshold float64    `db:"promo_threshold"` // fração, ex: 0.1 = queda de 10%
	Active         bool       `db:"active"`
	LastChecked    *time.Time `db:"last_checked"`
	CheckCount     int        `db:"check_count"`
	ErrorCount     int        `db:"error_count"`
	LastError      string     `db:"last_error"`
	ChatID         int64      `db:"chat_id"`
	UserID         int64      `db:"user_id"`
	CreatedAt      time.Time  `db:"created_at"`
}

// PriceHistory é um registro imutável do preço de um produto em um instante.
// Registros nunca são alterados nem reordenados depois de inseridos.
type PriceHistory struct {
	ID            int64     `db:"id"`
	ProductID     int64     `db:"product_id"`
	Price         float64   `db:"price"`
	ChangePercent *float64  `db:"change_percent"` // nil na primeira verificação
	Source        string    `db:"source"`
	CheckedAt     time.Time `db:"checked_at"`
}

// PriceUpdate é o resultado de uma atualização de preço no banco
type PriceUpdate struct {
	OldPrice      *float64
	NewPrice      float64
	ChangePercent *float64
}

// ScrapeResult é o resultado de uma tentativa de scraping de uma URL
type ScrapeResult struct {
	URL      string
	Domain   string
	Success  bool
	Price    float64
	Name     string
	Err      string
	Duration time.Duration
}

// CheckSummary agrega os resultados de um ciclo de verificação
type CheckSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Notified  int
	MinPrice  float64
	MaxPrice  float64
	AvgPrice  float64
	Duration  time.Duration
}
