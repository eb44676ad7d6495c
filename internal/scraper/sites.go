package scraper

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SiteConfig descreve como extrair dados de uma loja específica
type SiteConfig struct {
	PriceSelectors []string      `yaml:"price_selectors"`
	NameSelectors  []string      `yaml:"name_selectors"`
	Currency       string        `yaml:"currency"`
	WaitTime       time.Duration `yaml:"wait_time"`
}

// SupportLevel indica a confiança de que uma URL é suportada pelo scraper
type SupportLevel string

const (
	SupportHigh   SupportLevel = "high"   // domínio com configuração própria
	SupportMedium SupportLevel = "medium" // subdomínio de um site configurado
	SupportLow    SupportLevel = "low"    // domínio com cara de e-commerce
	SupportNone   SupportLevel = "none"
)

// Palavras que sugerem e-commerce em domínios desconhecidos
var ecommerceKeywords = []string{"shop", "store", "loja", "mercado", "magazine", "outlet", "compra", "oferta", "deal"}

// SiteRegistry mantém as configurações de extração por domínio.
// Pode ser alterado em tempo de execução sem reiniciar o scraper.
type SiteRegistry struct {
	mu    sync.RWMutex
	sites map[string]*SiteConfig
}

// NewSiteRegistry cria um registro com as lojas brasileiras conhecidas
func NewSiteRegistry() *SiteRegistry {
	r := &SiteRegistry{sites: make(map[string]*SiteConfig)}
	for domain, cfg := range defaultSites() {
		r.sites[domain] = cfg
	}
	return r
}

func defaultSites() map[string]*SiteConfig {
	return map[string]*SiteConfig{
		"mercadolivre.com.br": {
			PriceSelectors: []string{
				".ui-pdp-price__second-line .andes-money-amount__fraction",
				"[data-testid='price'] .andes-money-amount__fraction",
				".ui-pdp-price__first-line .andes-money-amount__fraction",
				".andes-money-amount__fraction",
				".price-tag-fraction",
				"meta[property='product:price:amount']",
			},
			NameSelectors: []string{"h1.ui-pdp-title", "h1[data-testid='title']", ".ui-pdp-title"},
			Currency:      "BRL",
		},
		"amazon.com.br": {
			PriceSelectors: []string{
				".a-price .a-offscreen",
				"#priceblock_ourprice",
				"#priceblock_dealprice",
				".a-price-whole",
			},
			NameSelectors: []string{"#productTitle", "h1#title"},
			Currency:      "BRL",
			WaitTime:      500 * time.Millisecond,
		},
		"magazineluiza.com.br": {
			PriceSelectors: []string{
				"[data-testid='price-value']",
				".price-template__text",
				"meta[property='product:price:amount']",
			},
			NameSelectors: []string{"[data-testid='heading-product-title']", "h1.header-product__title"},
			Currency:      "BRL",
		},
		"americanas.com.br": {
			PriceSelectors: []string{
				".sales-price",
				"[class*='PriceText']",
				"meta[property='product:price:amount']",
			},
			NameSelectors: []string{"[class*='product-title']", "h1"},
			Currency:      "BRL",
		},
		"casasbahia.com.br": {
			PriceSelectors: []string{
				"#product-price",
				"[data-testid='price-value']",
				".product-price-value",
			},
			NameSelectors: []string{"h1[itemprop='name']", "h1.product-name"},
			Currency:      "BRL",
		},
		"kabum.com.br": {
			PriceSelectors: []string{".finalPrice", "#blocoValores .preco", "meta[property='product:price:amount']"},
			NameSelectors:  []string{"h1#titulo_det", "h1"},
			Currency:       "BRL",
		},
		"shopee.com.br": {
			PriceSelectors: []string{"[class*='product-price']", "meta[property='product:price:amount']"},
			NameSelectors:  []string{"[class*='product-name']", "h1"},
			Currency:       "BRL",
			WaitTime:       time.Second,
		},
	}
}

// Lookup retorna a configuração do domínio, ou nil se não houver
func (r *SiteRegistry) Lookup(domain string) *SiteConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.sites[domain]; ok {
		return cfg
	}
	// Subdomínios herdam a configuração do site pai
	// (produto.mercadolivre.com.br -> mercadolivre.com.br)
	for registered, cfg := range r.sites {
		if strings.HasSuffix(domain, "."+registered) {
			return cfg
		}
	}
	return nil
}

// Set adiciona ou substitui a configuração de um domínio
func (r *SiteRegistry) Set(domain string, cfg *SiteConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[strings.ToLower(domain)] = cfg
}

// Remove apaga a configuração de um domínio
func (r *SiteRegistry) Remove(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sites, strings.ToLower(domain))
}

// Domains lista os domínios configurados em ordem alfabética
func (r *SiteRegistry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domains := make([]string, 0, len(r.sites))
	for d := range r.sites {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Support classifica a confiança de que o scraper funciona para a URL.
// É informativo: URLs "none" ainda podem ser raspadas pelos seletores
// genéricos.
func (r *SiteRegistry) Support(rawURL string) SupportLevel {
	domain := Domain(rawURL)
	if domain == "" {
		return SupportNone
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sites[domain]; ok {
		return SupportHigh
	}
	for registered := range r.sites {
		if strings.HasSuffix(domain, "."+registered) || strings.Contains(domain, strings.SplitN(registered, ".", 2)[0]) {
			return SupportMedium
		}
	}
	for _, kw := range ecommerceKeywords {
		if strings.Contains(domain, kw) {
			return SupportLow
		}
	}
	return SupportNone
}

// LoadFile carrega configurações extras de um arquivo YAML
// (mapa de domínio para SiteConfig), sobrescrevendo as existentes
func (r *SiteRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ler arquivo de sites: %w", err)
	}

	var sites map[string]*SiteConfig
	if err := yaml.Unmarshal(data, &sites); err != nil {
		return fmt.Errorf("parsear arquivo de sites: %w", err)
	}

	for domain, cfg := range sites {
		r.Set(domain, cfg)
	}
	return nil
}
