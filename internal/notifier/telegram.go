package notifier

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yuribraga17/bot-fiscal-preco/internal/models"
)

// Tipos de notificação, usados como chave de cooldown por produto
const (
	kindTargetReached = "target"
	kindPriceDrop     = "drop"
	kindPriceIncrease = "increase"
)

// sender é o que o notifier precisa do bot do Telegram
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type cooldownKey struct {
	productID int64
	kind      string
}

// TelegramNotifier envia as notificações decididas pelo monitor para o
// Telegram, suprimindo repetições do mesmo tipo para o mesmo produto
// dentro da janela de cooldown. Supressão não é erro: a chamada retorna
// nil e o monitor segue em frente.
type TelegramNotifier struct {
	bot           sender
	defaultChatID int64
	cooldown      time.Duration

	mu       sync.Mutex
	lastSent map[cooldownKey]time.Time
	now      func() time.Time
}

// New cria um notifier com o chat padrão e a janela de cooldown informados
func New(bot *tgbotapi.BotAPI, defaultChatID int64, cooldown time.Duration) *TelegramNotifier {
	return newWithSender(bot, defaultChatID, cooldown)
}

func newWithSender(bot sender, defaultChatID int64, cooldown time.Duration) *TelegramNotifier {
	return &TelegramNotifier{
		bot:           bot,
		defaultChatID: defaultChatID,
		cooldown:      cooldown,
		lastSent:      make(map[cooldownKey]time.Time),
		now:           time.Now,
	}
}

// NotifyTargetReached avisa que o preço chegou ao alvo definido pelo usuário
func (n *TelegramNotifier) NotifyTargetReached(p *models.Product, newPrice, oldPrice float64) error {
	if !n.allowed(p.ID, kindTargetReached) {
		return nil
	}

	message := fmt.Sprintf(
		"🎯 <b>PREÇO ALVO ATINGIDO!</b>\n\n"+
			"Produto: %s\n"+
			"Preço atual: R$ %.2f\n"+
			"Preço anterior: R$ %.2f\n"+
			"Preço alvo: R$ %.2f\n\n"+
			"Link: %s",
		escapeHTML(p.Name), newPrice, oldPrice, p.TargetPrice, p.URL,
	)
	return n.send(p, message)
}

// NotifyPriceDrop avisa sobre uma queda de preço acima do limiar do produto
func (n *TelegramNotifier) NotifyPriceDrop(p *models.Product, newPrice, oldPrice, changePercent float64) error {
	if !n.allowed(p.ID, kindPriceDrop) {
		return nil
	}

	message := fmt.Sprintf(
		"📉 <b>QUEDA DE PREÇO!</b>\n\n"+
			"Produto: %s\n"+
			"Preço atual: R$ %.2f\n"+
			"Preço anterior: R$ %.2f\n"+
			"Variação: %.1f%%\n\n"+
			"Link: %s",
		escapeHTML(p.Name), newPrice, oldPrice, changePercent, p.URL,
	)
	return n.send(p, message)
}

// NotifyPriceIncrease avisa sobre uma alta de preço relevante
func (n *TelegramNotifier) NotifyPriceIncrease(p *models.Product, newPrice, oldPrice, changePercent float64) error {
	if !n.allowed(p.ID, kindPriceIncrease) {
		return nil
	}

	message := fmt.Sprintf(
		"📈 <b>Alta de preço</b>\n\n"+
			"Produto: %s\n"+
			"Preço atual: R$ %.2f\n"+
			"Preço anterior: R$ %.2f\n"+
			"Variação: +%.1f%%\n\n"+
			"Link: %s",
		escapeHTML(p.Name), newPrice, oldPrice, changePercent, p.URL,
	)
	return n.send(p, message)
}

// NotifySummary envia o resumo de um ciclo com muitas notificações
func (n *TelegramNotifier) NotifySummary(summary models.CheckSummary) error {
	if n.defaultChatID == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("📊 <b>Resumo do ciclo de verificação</b>\n\n")
	fmt.Fprintf(&b, "Produtos verificados: %d\n", summary.Total)
	fmt.Fprintf(&b, "Sucesso: %d | Falhas: %d\n", summary.Succeeded, summary.Failed)
	fmt.Fprintf(&b, "Notificações enviadas: %d\n", summary.Notified)
	if summary.Succeeded > 0 {
		fmt.Fprintf(&b, "Preços: mín R$ %.2f | méd R$ %.2f | máx R$ %.2f\n",
			summary.MinPrice, summary.AvgPrice, summary.MaxPrice)
	}
	fmt.Fprintf(&b, "Duração: %v", summary.Duration.Round(time.Second))

	msg := tgbotapi.NewMessage(n.defaultChatID, b.String())
	msg.ParseMode = "HTML"
	_, err := n.bot.Send(msg)
	return err
}

// allowed verifica o cooldown por (produto, tipo) e registra o envio
func (n *TelegramNotifier) allowed(productID int64, kind string) bool {
	if n.cooldown <= 0 {
		return true
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	key := cooldownKey{productID: productID, kind: kind}
	now := n.now()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastSent[key] = now
	return true
}

func (n *TelegramNotifier) send(p *models.Product, message string) error {
	chatID := p.ChatID
	if chatID == 0 {
		chatID = n.defaultChatID
	}
	if chatID == 0 {
		return fmt.Errorf("produto %d sem chat de destino", p.ID)
	}

	msg := tgbotapi.NewMessage(chatID, message)
	msg.ParseMode = "HTML"
	if _, err := n.bot.Send(msg); err != nil {
		// Mensagens com HTML inválido vindo do nome do produto ainda
		// devem chegar; tentar sem formatação
		log.Printf("Erro ao enviar notificação com HTML: %v", err)
		msg.ParseMode = ""
		_, err = n.bot.Send(msg)
		return err
	}
	return nil
}

// escapeHTML escapa caracteres especiais do HTML do Telegram
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
