package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yuribraga17/bot-fiscal-preco/internal/models"
)

// Parâmetros de query de rastreamento removidos na normalização de URLs
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"ref":     true,
	"ref_":    true,
	"tag":     true,
	"spm":     true,
	"srsltid": true,
	"mc_cid":  true,
	"mc_eid":  true,
}

// Scraper compõe o Fetcher e o parser de preços para extrair dados de
// produto de uma URL
type Scraper struct {
	fetcher *Fetcher
	sites   *SiteRegistry
}

// BatchOptions controla o scraping em lote
type BatchOptions struct {
	Concurrency int           // tamanho de cada grupo paralelo (padrão 3)
	Delay       time.Duration // espera entre grupos (padrão 2s)
	OnProgress  func(done, total int)
}

// New cria um scraper usando o fetcher e o registro de sites fornecidos
func New(fetcher *Fetcher, sites *SiteRegistry) *Scraper {
	return &Scraper{fetcher: fetcher, sites: sites}
}

// Sites expõe o registro de configurações por domínio
func (s *Scraper) Sites() *SiteRegistry {
	return s.sites
}

// ScrapePrice busca a página do produto e extrai preço e nome.
// Nunca retorna erro: falhas viram um ScrapeResult com Success=false.
func (s *Scraper) ScrapePrice(ctx context.Context, rawURL string) models.ScrapeResult {
	start := time.Now()
	result := models.ScrapeResult{URL: NormalizeURL(rawURL)}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		result.Err = fmt.Sprintf("URL inválida: %q", rawURL)
		result.Duration = time.Since(start)
		return result
	}

	result.Domain = hostDomain(parsed.Host)
	site := s.sites.Lookup(result.Domain)

	// Alguns sites pedem uma espera antes da requisição para não
	// disparar rate limit
	if site != nil && site.WaitTime > 0 {
		select {
		case <-ctx.Done():
			result.Err = ctx.Err().Error()
			result.Duration = time.Since(start)
			return result
		case <-time.After(site.WaitTime):
		}
	}

	// A URL original é buscada como veio; a normalização vale só como
	// chave de exibição e deduplicação
	doc, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		result.Err = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	price, ok := ExtractPrice(doc, site)
	if !ok {
		result.Err = "preço não encontrado na página"
		result.Duration = time.Since(start)
		return result
	}

	result.Price = price
	result.Success = true
	if name, ok := ExtractProductName(doc, site); ok {
		result.Name = name
	}
	result.Duration = time.Since(start)
	return result
}

// ScrapeBatch raspa as URLs em grupos de tamanho fixo. Cada grupo roda
// inteiro em paralelo e nenhuma falha individual derruba o grupo; entre
// grupos (mas não depois do último) há uma espera para aliviar os sites.
func (s *Scraper) ScrapeBatch(ctx context.Context, urls []string, opts BatchOptions) []models.ScrapeResult {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	delay := opts.Delay
	if delay == 0 {
		delay = 2 * time.Second
	}

	results := make([]models.ScrapeResult, len(urls))
	for group := 0; group < len(urls); group += concurrency {
		end := group + concurrency
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for i := group; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = s.ScrapePrice(ctx, urls[i])
			}(i)
		}
		wg.Wait()

		if opts.OnProgress != nil {
			opts.OnProgress(end, len(urls))
		}

		if end < len(urls) {
			select {
			case <-ctx.Done():
				// Marcar as URLs restantes como canceladas
				for i := end; i < len(urls); i++ {
					results[i] = models.ScrapeResult{URL: NormalizeURL(urls[i]), Err: ctx.Err().Error()}
				}
				return results
			case <-time.After(delay):
			}
		}
	}
	return results
}

// NormalizeURL remove parâmetros de rastreamento (utm_*, gclid, fbclid...)
// e o fragmento, para servir de chave estável de deduplicação e exibição
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := parsed.Query()
	for key := range query {
		if trackingParams[strings.ToLower(key)] || strings.HasPrefix(strings.ToLower(key), "utm_") {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""
	return parsed.String()
}

// Domain extrai o domínio (host sem "www.") de uma URL
func Domain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return hostDomain(parsed.Host)
}

func hostDomain(host string) string {
	host = strings.ToLower(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}
