package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxRedirects = 5
	maxBodySize  = 5 << 20 // 5 MB
)

// ErrBlocked indica que o site respondeu com uma página de anti-bot
// (captcha, Cloudflare, etc). Não adianta tentar de novo na mesma chamada.
var ErrBlocked = errors.New("página bloqueada por proteção anti-bot")

// Trechos que denunciam uma página de bloqueio em vez de conteúdo real
var blockIndicators = []string{
	"captcha",
	"blocked",
	"rate limit",
	"cloudflare",
	"access denied",
	"acesso negado",
	"are you a robot",
	"unusual traffic",
	"bot detection",
	"please verify",
}

// HTTPError representa uma resposta com status de falha (>= 400)
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("status code: %d", e.StatusCode)
}

// Fetcher busca páginas de produto com headers de navegador,
// detecção de bloqueio e retry com backoff exponencial.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxAttempts int

	// base do backoff (2^tentativa * base); reduzida nos testes
	backoffBase time.Duration
}

// NewFetcher cria um fetcher com timeout por requisição e limite de tentativas
func NewFetcher(timeout time.Duration, userAgent string, maxAttempts int) *Fetcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("limite de %d redirecionamentos excedido", maxRedirects)
				}
				return nil
			},
		},
		userAgent:   userAgent,
		maxAttempts: maxAttempts,
		backoffBase: time.Second,
	}
}

// Fetch busca e parseia uma página. Falhas transitórias (timeout, conexão,
// 5xx, rate limit) são retentadas com backoff 2^tentativa; as demais
// propagam imediatamente. O contador de tentativas pertence a esta chamada,
// não vaza entre URLs nem entre chamadas.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * f.backoffBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		doc, err := f.fetchOnce(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("máximo de %d tentativas excedido: %w", f.maxAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	// Mesmo 4xx pode carregar uma página de bloqueio; inspecionar antes
	// de decidir pelo status
	if indicator := findBlockIndicator(body); indicator != "" {
		return nil, fmt.Errorf("%w (indicador: %q)", ErrBlocked, indicator)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsear HTML: %w", err)
	}
	return doc, nil
}

func findBlockIndicator(body []byte) string {
	lower := strings.ToLower(string(body))
	for _, indicator := range blockIndicators {
		if strings.Contains(lower, indicator) {
			return indicator
		}
	}
	return ""
}

// isRetryable classifica o erro como transitório (vale retry) ou não
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlocked) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"connection reset", "connection refused", "timeout", "rate limit", "temporar"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
