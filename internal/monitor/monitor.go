package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yuribraga17/bot-fiscal-preco/internal/models"
)

// Estados do monitor
const (
	StateStopped  = "stopped"
	StateIdle     = "idle"
	StateChecking = "checking"
)

// A cada quantos ciclos completos rodar manutenção e backup
const (
	maintenanceEvery = 10
	backupEvery      = 50
)

// Limiar de notificações num ciclo a partir do qual um resumo é enviado
const summaryThreshold = 5

// Config controla o agendamento e o tamanho dos lotes do monitor
type Config struct {
	Interval        time.Duration // intervalo entre ciclos
	WarmupDelay     time.Duration // espera antes do primeiro ciclo
	BatchSize       int           // produtos verificados em paralelo por sub-lote
	BatchDelay      time.Duration // espera entre sub-lotes
	MaxPerCycle     int           // teto de produtos por ciclo
	RetentionDays   int           // janela de retenção do histórico
	ForceCheckDelay time.Duration // espera entre produtos no ForceCheck
}

func (c *Config) fillDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.WarmupDelay <= 0 {
		c.WarmupDelay = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 3 * time.Second
	}
	if c.MaxPerCycle <= 0 {
		c.MaxPerCycle = 50
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.ForceCheckDelay <= 0 {
		c.ForceCheckDelay = 2 * time.Second
	}
}

// Monitor agenda e executa os ciclos de verificação de preço.
// No máximo um ciclo roda por vez: ticks que chegam durante um ciclo em
// andamento são descartados, nunca enfileirados.
type Monitor struct {
	store    ProductStore
	scraper  Scraper
	notifier Notifier
	cfg      Config

	running  atomic.Bool
	checking atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	completedCycles atomic.Int64
	failedCycles    atomic.Int64
}

// New cria um monitor com as dependências injetadas
func New(store ProductStore, scraper Scraper, notifier Notifier, cfg Config) *Monitor {
	cfg.fillDefaults()
	return &Monitor{
		store:    store,
		scraper:  scraper,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Start inicia o agendador em background. Chamar de novo com o monitor
// rodando é um no-op.
func (m *Monitor) Start() {
	if !m.running.CompareAndSwap(false, true) {
		log.Println("Monitor já está em execução")
		return
	}
	m.stopCh = make(chan struct{})
	m.stopOnce = sync.Once{}

	log.Printf("Monitor iniciado. Verificando produtos a cada %v", m.cfg.Interval)
	go m.run()
}

// Stop cancela o agendamento. Um ciclo em andamento termina normalmente,
// mas nenhum novo ciclo começa.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
	log.Println("Monitor parado")
}

// State retorna o estado atual do agendador
func (m *Monitor) State() string {
	switch {
	case !m.running.Load():
		return StateStopped
	case m.checking.Load():
		return StateChecking
	default:
		return StateIdle
	}
}

func (m *Monitor) run() {
	// Primeira verificação após o aquecimento
	warmup := time.NewTimer(m.cfg.WarmupDelay)
	select {
	case <-m.stopCh:
		warmup.Stop()
		return
	case <-warmup.C:
		m.tick()
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick dispara um ciclo se nenhum outro estiver em andamento
func (m *Monitor) tick() {
	if !m.checking.CompareAndSwap(false, true) {
		log.Println("Ciclo anterior ainda em andamento, tick descartado")
		return
	}
	defer m.checking.Store(false)

	if err := m.executeCheck(); err != nil {
		m.failedCycles.Add(1)
		log.Printf("Erro no ciclo de verificação: %v", err)
		return
	}

	completed := m.completedCycles.Add(1)
	if completed%maintenanceEvery == 0 {
		m.runMaintenance(completed)
	}
}

// checkOutcome é o resultado de uma verificação individual
type checkOutcome struct {
	success  bool
	notified bool
	price    float64
}

// executeCheck roda um ciclo completo: seleciona os produtos devidos,
// verifica em sub-lotes e agrega o resumo
func (m *Monitor) executeCheck() error {
	start := time.Now()

	products, err := m.store.FindDueForCheck(m.cfg.Interval, m.cfg.MaxPerCycle)
	if err != nil {
		return fmt.Errorf("buscar produtos devidos: %w", err)
	}
	if len(products) == 0 {
		return nil
	}

	log.Printf("Verificando %d produto(s)", len(products))

	summary := models.CheckSummary{Total: len(products)}
	var mu sync.Mutex
	var priceSum float64

	for batchStart := 0; batchStart < len(products); batchStart += m.cfg.BatchSize {
		batchEnd := batchStart + m.cfg.BatchSize
		if batchEnd > len(products) {
			batchEnd = len(products)
		}

		var wg sync.WaitGroup
		for _, product := range products[batchStart:batchEnd] {
			wg.Add(1)
			go func(p models.Product) {
				defer wg.Done()
				outcome := m.checkProduct(&p)

				mu.Lock()
				defer mu.Unlock()
				if outcome.success {
					summary.Succeeded++
					priceSum += outcome.price
					if summary.MinPrice == 0 || outcome.price < summary.MinPrice {
						summary.MinPrice = outcome.price
					}
					if outcome.price > summary.MaxPrice {
						summary.MaxPrice = outcome.price
					}
				} else {
					summary.Failed++
				}
				if outcome.notified {
					summary.Notified++
				}
			}(product)
		}
		wg.Wait()

		// Espera entre sub-lotes (não depois do último) para limitar a
		// taxa de requisições
		if batchEnd < len(products) {
			time.Sleep(m.cfg.BatchDelay)
		}
	}

	if summary.Succeeded > 0 {
		summary.AvgPrice = priceSum / float64(summary.Succeeded)
	}
	summary.Duration = time.Since(start)

	log.Printf("Ciclo concluído em %v: %d ok, %d falhas, %d notificações",
		summary.Duration.Round(time.Millisecond), summary.Succeeded, summary.Failed, summary.Notified)

	if summary.Notified >= summaryThreshold {
		if err := m.notifier.NotifySummary(summary); err != nil {
			log.Printf("Erro ao enviar resumo do ciclo: %v", err)
		}
	}

	return nil
}

// checkProduct verifica um produto: raspa o preço, atualiza o banco,
// registra o histórico e avalia as regras de notificação. Qualquer falha
// fica contida no produto, nunca derruba o lote.
func (m *Monitor) checkProduct(p *models.Product) (outcome checkOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Pânico ao verificar produto %d: %v", p.ID, r)
			outcome = checkOutcome{}
		}
	}()

	result := m.scraper.ScrapePrice(context.Background(), p.URL)
	if !result.Success {
		log.Printf("Falha ao verificar produto %d (%s): %s", p.ID, p.URL, result.Err)
		if err := m.store.IncrementError(p.ID, result.Err); err != nil {
			log.Printf("Erro ao registrar falha do produto %d: %v", p.ID, err)
		}
		return checkOutcome{}
	}

	update, err := m.store.UpdatePrice(p.ID, result.Price)
	if err != nil {
		log.Printf("Erro ao atualizar preço do produto %d: %v", p.ID, err)
		return checkOutcome{}
	}

	if err := m.store.AppendHistory(p.ID, result.Price, update.ChangePercent, models.HistorySourceScraping); err != nil {
		log.Printf("Erro ao registrar histórico do produto %d: %v", p.ID, err)
	}

	notified := m.evaluateNotifications(p, update)
	return checkOutcome{success: true, notified: notified, price: result.Price}
}

// evaluateNotifications aplica as regras em ordem de precedência; apenas a
// primeira que casar dispara. Sem preço anterior, nada dispara.
func (m *Monitor) evaluateNotifications(p *models.Product, update *models.PriceUpdate) bool {
	if update.OldPrice == nil {
		return false
	}
	oldPrice := *update.OldPrice
	newPrice := update.NewPrice

	var change float64
	if update.ChangePercent != nil {
		change = *update.ChangePercent
	}

	var err error
	switch {
	case p.TargetPrice > 0 && newPrice <= p.TargetPrice && oldPrice > p.TargetPrice:
		err = m.notifier.NotifyTargetReached(p, newPrice, oldPrice)
	case p.PromoThreshold > 0 && change <= -(p.PromoThreshold*100):
		err = m.notifier.NotifyPriceDrop(p, newPrice, oldPrice, change)
	// Alta de preço exige o dobro do limiar de queda
	case p.PromoThreshold > 0 && change >= p.PromoThreshold*200:
		err = m.notifier.NotifyPriceIncrease(p, newPrice, oldPrice, change)
	default:
		return false
	}

	if err != nil {
		log.Printf("Erro ao notificar produto %d: %v", p.ID, err)
	}
	return true
}

// runMaintenance reativa produtos desativados por erros antigos, limpa o
// histórico fora da janela de retenção e, com menos frequência, faz backup
func (m *Monitor) runMaintenance(completedCycles int64) {
	if reactivated, err := m.store.ReactivateStaleErrored(); err != nil {
		log.Printf("Erro na reativação de produtos: %v", err)
	} else if reactivated > 0 {
		log.Printf("%d produto(s) reativado(s) após período de falhas", reactivated)
	}

	if purged, err := m.store.PurgeHistoryOlderThan(m.cfg.RetentionDays); err != nil {
		log.Printf("Erro na limpeza do histórico: %v", err)
	} else if purged > 0 {
		log.Printf("%d registro(s) de histórico removido(s)", purged)
	}

	if completedCycles%backupEvery == 0 {
		if location, err := m.store.Backup(); err != nil {
			log.Printf("Erro no backup do banco: %v", err)
		} else {
			log.Printf("Backup gravado em %s", location)
		}
	}
}

// ForceCheck verifica imediatamente um produto (ou todos os ativos, com
// id 0), fora do agendamento e ignorando o filtro de "devido". Retorna
// quantas verificações passaram e quantas falharam.
func (m *Monitor) ForceCheck(productID int64) (succeeded, failed int, err error) {
	var products []models.Product
	if productID > 0 {
		p, err := m.store.FindByID(productID)
		if err != nil {
			return 0, 0, err
		}
		products = []models.Product{*p}
	} else {
		products, err = m.store.FindActive()
		if err != nil {
			return 0, 0, err
		}
	}

	for i := range products {
		outcome := m.checkProduct(&products[i])
		if outcome.success {
			succeeded++
		} else {
			failed++
		}
		if i < len(products)-1 {
			time.Sleep(m.cfg.ForceCheckDelay)
		}
	}
	return succeeded, failed, nil
}

// Stats retorna os contadores acumulados do agendador
func (m *Monitor) Stats() (completed, failed int64) {
	return m.completedCycles.Load(), m.failedCycles.Load()
}
