package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yuribraga17/bot-fiscal-preco/internal/database"
	"github.com/yuribraga17/bot-fiscal-preco/internal/models"
	"github.com/yuribraga17/bot-fiscal-preco/internal/monitor"
	"github.com/yuribraga17/bot-fiscal-preco/internal/scraper"
)

// escapeHTML escapa caracteres especiais do HTML
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// Handler agrupa as dependências dos comandos do bot
type Handler struct {
	bot     *tgbotapi.BotAPI
	db      *database.DB
	monitor *monitor.Monitor
	scraper *scraper.Scraper

	// chat autorizado; 0 libera todos os chats
	authorizedChatID int64
}

// NewHandler cria o handler de comandos
func NewHandler(bot *tgbotapi.BotAPI, db *database.DB, mon *monitor.Monitor, scr *scraper.Scraper, authorizedChatID int64) *Handler {
	return &Handler{
		bot:              bot,
		db:               db,
		monitor:          mon,
		scraper:          scr,
		authorizedChatID: authorizedChatID,
	}
}

// Run consome as atualizações do Telegram até o canal fechar
func (h *Handler) Run() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		parts := strings.Fields(update.Message.Text)
		if len(parts) == 0 {
			continue
		}

		// Remover @botname se presente
		command := strings.ToLower(parts[0])
		if idx := strings.Index(command, "@"); idx > 0 {
			command = command[:idx]
		}

		isPublicCommand := command == "/start" || command == "/help"
		if !isPublicCommand && h.authorizedChatID != 0 && update.Message.Chat.ID != h.authorizedChatID {
			h.reply(update.Message.Chat.ID, "Você não está autorizado a usar este bot.")
			continue
		}

		switch command {
		case "/start", "/help":
			h.handleHelp(update.Message.Chat.ID)
		case "/add":
			h.handleAdd(update.Message)
		case "/list":
			h.handleList(update.Message.Chat.ID)
		case "/remove":
			h.handleRemove(update.Message)
		case "/check":
			h.handleCheck(update.Message)
		case "/history":
			h.handleHistory(update.Message)
		case "/pause":
			h.handleSetActive(update.Message, false)
		case "/resume":
			h.handleSetActive(update.Message, true)
		case "/sites":
			h.handleSites(update.Message.Chat.ID)
		default:
			h.reply(update.Message.Chat.ID, "Comando não reconhecido. Use /help para ver os comandos disponíveis.")
		}
	}
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.Printf("Erro ao enviar mensagem: %v", err)
	}
}

func (h *Handler) replyHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	if _, err := h.bot.Send(msg); err != nil {
		log.Printf("Erro ao enviar mensagem com HTML: %v", err)
		// Tentar sem formatação se houver erro
		msg.ParseMode = ""
		h.bot.Send(msg)
	}
}

func (h *Handler) handleHelp(chatID int64) {
	helpText := `🤖 <b>Bot de Monitoramento de Preços</b>

<b>Comandos disponíveis:</b>

<b>/add</b> &lt;URL&gt; &lt;preço_alvo&gt; [limiar%] - Adicionar produto
Exemplo: /add https://mercadolivre.com.br/produto 3000
Exemplo: /add https://mercadolivre.com.br/produto 3000 15% (notificar quedas de 15%)

<b>/list</b> - Listar produtos monitorados

<b>/remove &lt;id&gt;</b> - Remover produto do monitoramento

<b>/check [id]</b> - Verificar preço agora (sem id: todos os ativos)

<b>/history &lt;id&gt;</b> - Histórico de preços do produto

<b>/pause &lt;id&gt;</b> / <b>/resume &lt;id&gt;</b> - Pausar/retomar monitoramento

<b>/sites</b> - Lojas com suporte dedicado

<b>/help</b> - Mostrar esta mensagem
`
	h.replyHTML(chatID, helpText)
}

func (h *Handler) handleAdd(message *tgbotapi.Message) {
	parts := strings.Fields(message.Text)
	if len(parts) < 3 {
		h.reply(message.Chat.ID, "❌ Formato incorreto.\n\nUso: /add <URL> <preço_alvo> [limiar%]\n\nExemplo: /add https://mercadolivre.com.br/produto 3000 10%")
		return
	}

	url := parts[1]
	targetPrice, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || targetPrice <= 0 {
		h.reply(message.Chat.ID, "❌ Preço alvo inválido. Use um valor numérico positivo.")
		return
	}

	// Limiar de promoção opcional, em percentual (padrão 10%)
	threshold := 0.1
	if len(parts) > 3 {
		raw := strings.TrimSuffix(parts[3], "%")
		percent, err := strconv.ParseFloat(raw, 64)
		if err != nil || percent <= 0 || percent > 100 {
			h.reply(message.Chat.ID, "❌ Limiar inválido. Use um percentual entre 0 e 100.")
			return
		}
		threshold = percent / 100
	}

	support := h.scraper.Sites().Support(url)
	if support == scraper.SupportNone {
		h.reply(message.Chat.ID, "⚠️ Loja sem suporte dedicado; vou tentar os seletores genéricos mesmo assim.")
	}

	waitMsgID := h.sendWait(message.Chat.ID, "⏳ Buscando dados do produto...")

	result := h.scraper.ScrapePrice(context.Background(), url)

	name := result.Name
	if name == "" {
		name = "Produto sem nome"
	}

	userID := int64(0)
	if message.From != nil {
		userID = message.From.ID
	}

	id, err := h.db.AddProduct(result.URL, name, targetPrice, threshold, message.Chat.ID, userID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			h.editOrReply(message.Chat.ID, waitMsgID, "❌ Este produto já está sendo monitorado.")
		} else {
			h.editOrReply(message.Chat.ID, waitMsgID, fmt.Sprintf("❌ Erro ao adicionar produto: %v", err))
		}
		return
	}

	response := fmt.Sprintf("✅ Produto adicionado com sucesso!\n\nID: %d\nNome: %s\nPreço alvo: R$ %.2f\nLimiar de queda: %.0f%%",
		id, name, targetPrice, threshold*100)

	if result.Success {
		if _, err := h.db.UpdatePrice(id, result.Price); err == nil {
			_ = h.db.AppendHistory(id, result.Price, nil, models.HistorySourceInitial)
		}
		response += fmt.Sprintf("\nPreço atual: R$ %.2f", result.Price)
		if result.Price <= targetPrice {
			response += "\n🎉 Produto já está no preço alvo!"
		} else {
			response += fmt.Sprintf("\n💡 Faltam R$ %.2f para o alvo", result.Price-targetPrice)
		}
	} else {
		response += fmt.Sprintf("\n⚠️ Não consegui ler o preço agora (%s); o monitor tentará de novo no próximo ciclo.", result.Err)
	}

	h.editOrReply(message.Chat.ID, waitMsgID, response)
}

func (h *Handler) handleList(chatID int64) {
	products, err := h.db.FindByChatID(chatID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("❌ Erro ao listar produtos: %v", err))
		return
	}

	if len(products) == 0 {
		h.reply(chatID, "📋 Nenhum produto sendo monitorado neste chat.")
		return
	}

	var response strings.Builder
	response.WriteString("📋 <b>Produtos em Monitoramento:</b>\n\n")

	for _, p := range products {
		response.WriteString(fmt.Sprintf("🆔 <b>ID: %d</b>\n", p.ID))
		response.WriteString(fmt.Sprintf("📦 %s\n", escapeHTML(p.Name)))

		if p.CurrentPrice > 0 {
			response.WriteString(fmt.Sprintf("💰 <b>Preço atual: R$ %.2f</b>\n", p.CurrentPrice))
			if p.LastPrice != nil && *p.LastPrice != p.CurrentPrice {
				response.WriteString(fmt.Sprintf("↩️ Preço anterior: R$ %.2f\n", *p.LastPrice))
			}
		} else {
			response.WriteString("💰 <b>Preço atual: Não verificado ainda</b>\n")
		}

		if p.TargetPrice > 0 {
			if p.CurrentPrice > 0 && p.CurrentPrice <= p.TargetPrice {
				response.WriteString(fmt.Sprintf("🎯 Preço alvo: R$ %.2f ✅ <b>META ATINGIDA!</b>\n", p.TargetPrice))
			} else if p.CurrentPrice > 0 {
				response.WriteString(fmt.Sprintf("🎯 Preço alvo: R$ %.2f (faltam R$ %.2f)\n", p.TargetPrice, p.CurrentPrice-p.TargetPrice))
			} else {
				response.WriteString(fmt.Sprintf("🎯 Preço alvo: R$ %.2f\n", p.TargetPrice))
			}
		}
		response.WriteString(fmt.Sprintf("📉 Limiar de queda: %.0f%%\n", p.PromoThreshold*100))

		if !p.Active {
			if p.ErrorCount >= models.MaxErrorCount {
				response.WriteString(fmt.Sprintf("⛔ Desativado após %d falhas (%s)\n", p.ErrorCount, escapeHTML(p.LastError)))
			} else {
				response.WriteString("⏸️ Monitoramento pausado\n")
			}
		} else if p.ErrorCount > 0 {
			response.WriteString(fmt.Sprintf("⚠️ %d falha(s) recente(s)\n", p.ErrorCount))
		}

		if p.LastChecked != nil {
			response.WriteString(fmt.Sprintf("🕐 Última verificação: %s\n", p.LastChecked.Format("02/01/2006 15:04")))
		} else {
			response.WriteString("🕐 Última verificação: Nunca\n")
		}

		response.WriteString(fmt.Sprintf("🔗 %s\n\n", p.URL))
	}

	h.replyHTML(chatID, response.String())
}

func (h *Handler) handleRemove(message *tgbotapi.Message) {
	id, ok := h.parseID(message, "/remove")
	if !ok {
		return
	}

	product, err := h.db.FindByID(id)
	if err != nil {
		h.reply(message.Chat.ID, "❌ Produto não encontrado.")
		return
	}

	if err := h.db.SetActive(id, false); err != nil {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ Erro ao remover produto: %v", err))
		return
	}

	h.reply(message.Chat.ID, fmt.Sprintf("✅ Produto removido: %s", product.Name))
}

func (h *Handler) handleCheck(message *tgbotapi.Message) {
	parts := strings.Fields(message.Text)

	var productID int64
	if len(parts) > 1 {
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			h.reply(message.Chat.ID, "❌ ID inválido.")
			return
		}
		productID = id
	}

	waitMsgID := h.sendWait(message.Chat.ID, "⏳ Verificando preço(s)...")

	// ForceCheck respeita a espera entre produtos, então roda fora do
	// loop de comandos
	go func() {
		succeeded, failed, err := h.monitor.ForceCheck(productID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				h.editOrReply(message.Chat.ID, waitMsgID, "❌ Produto não encontrado.")
			} else {
				h.editOrReply(message.Chat.ID, waitMsgID, fmt.Sprintf("❌ Erro na verificação: %v", err))
			}
			return
		}

		if productID > 0 {
			product, err := h.db.FindByID(productID)
			if err != nil || !product.Active && product.ErrorCount >= models.MaxErrorCount {
				h.editOrReply(message.Chat.ID, waitMsgID, "❌ Não consegui verificar o produto.")
				return
			}
			if failed > 0 {
				h.editOrReply(message.Chat.ID, waitMsgID,
					fmt.Sprintf("❌ Falha ao verificar %s: %s", product.Name, product.LastError))
				return
			}
			h.editOrReply(message.Chat.ID, waitMsgID,
				fmt.Sprintf("📊 %s\n\nPreço atual: R$ %.2f\nLink: %s", product.Name, product.CurrentPrice, product.URL))
			return
		}

		h.editOrReply(message.Chat.ID, waitMsgID,
			fmt.Sprintf("📊 Verificação concluída: %d ok, %d falha(s)", succeeded, failed))
	}()
}

func (h *Handler) handleHistory(message *tgbotapi.Message) {
	id, ok := h.parseID(message, "/history")
	if !ok {
		return
	}

	product, err := h.db.FindByID(id)
	if err != nil {
		h.reply(message.Chat.ID, "❌ Produto não encontrado.")
		return
	}

	history, err := h.db.GetHistory(id, 10)
	if err != nil {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ Erro ao buscar histórico: %v", err))
		return
	}

	if len(history) == 0 {
		h.reply(message.Chat.ID, "📈 Nenhum registro de preço ainda.")
		return
	}

	var response strings.Builder
	fmt.Fprintf(&response, "📈 <b>Histórico: %s</b>\n\n", escapeHTML(product.Name))
	for _, record := range history {
		fmt.Fprintf(&response, "R$ %.2f", record.Price)
		if record.ChangePercent != nil {
			fmt.Fprintf(&response, " (%+.1f%%)", *record.ChangePercent)
		}
		fmt.Fprintf(&response, " — %s\n", record.CheckedAt.Format("02/01/2006 15:04"))
	}

	h.replyHTML(message.Chat.ID, response.String())
}

func (h *Handler) handleSetActive(message *tgbotapi.Message, active bool) {
	command := "/pause"
	if active {
		command = "/resume"
	}
	id, ok := h.parseID(message, command)
	if !ok {
		return
	}

	if err := h.db.SetActive(id, active); err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			h.reply(message.Chat.ID, "❌ Produto não encontrado.")
		} else {
			h.reply(message.Chat.ID, fmt.Sprintf("❌ Erro: %v", err))
		}
		return
	}

	if active {
		h.reply(message.Chat.ID, "▶️ Monitoramento retomado.")
	} else {
		h.reply(message.Chat.ID, "⏸️ Monitoramento pausado.")
	}
}

func (h *Handler) handleSites(chatID int64) {
	domains := h.scraper.Sites().Domains()

	var response strings.Builder
	response.WriteString("🏪 <b>Lojas com suporte dedicado:</b>\n\n")
	for _, domain := range domains {
		fmt.Fprintf(&response, "• %s\n", domain)
	}
	response.WriteString("\nOutras lojas são atendidas pelos seletores genéricos.")

	h.replyHTML(chatID, response.String())
}

func (h *Handler) parseID(message *tgbotapi.Message, command string) (int64, bool) {
	parts := strings.Fields(message.Text)
	if len(parts) < 2 {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ Formato incorreto.\n\nUso: %s <id>", command))
		return 0, false
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		h.reply(message.Chat.ID, "❌ ID inválido.")
		return 0, false
	}
	return id, true
}

// sendWait envia uma mensagem de "aguarde" e retorna o ID dela para edição
func (h *Handler) sendWait(chatID int64, text string) int {
	sent, err := h.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0
	}
	return sent.MessageID
}

// editOrReply edita a mensagem de "aguarde" ou, se não deu para enviá-la,
// manda uma nova
func (h *Handler) editOrReply(chatID int64, messageID int, text string) {
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		if _, err := h.bot.Send(edit); err == nil {
			return
		}
	}
	h.reply(chatID, text)
}
