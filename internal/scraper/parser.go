package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Padrões numéricos testados em ordem; o primeiro que casar estruturalmente
// com o texto limpo decide a interpretação, sem tentar alternativas depois.
var (
	reBrazilian    = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+,\d{1,2}$`) // 1.234,56
	reUSDecimal    = regexp.MustCompile(`^\d+(?:,\d{3})*\.\d{1,2}$`)     // 1234.56 / 1,234.56
	reCommaDecimal = regexp.MustCompile(`^\d+,\d{1,2}$`)                 // 1234,56
	reInteger      = regexp.MustCompile(`^\d+$`)                         // 1234
)

var reNonPrice = regexp.MustCompile(`[^0-9.,]`)

// Seletores genéricos de preço, testados depois dos seletores do site.
// A ordem importa: classes mais específicas de lojas conhecidas primeiro.
var genericPriceSelectors = []string{
	".andes-money-amount__fraction",
	".price-tag-fraction",
	".a-price .a-offscreen",
	"#priceblock_ourprice",
	".price-template__text",
	".sales-price",
	".product-price-value",
	".finalPrice",
	".price__current",
	".price-current",
	".product-price",
	".current-price",
	"[itemprop='price']",
	"meta[property='product:price:amount']",
	"[data-testid='price']",
	".preco",
	".price",
}

// Atributos inspecionados quando o texto do elemento não rende um preço
var priceAttrs = []string{"data-price", "value", "content", "title"}

// Padrões aplicados ao HTML bruto quando nenhum seletor encontra preço
// (dados embutidos em JSON e valores prefixados com moeda)
var rawPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"price"\s*:\s*"?([0-9][0-9.,]*)"?`),
	regexp.MustCompile(`"lowPrice"\s*:\s*"?([0-9][0-9.,]*)"?`),
	regexp.MustCompile(`"amount"\s*:\s*"?([0-9][0-9.,]*)"?`),
	regexp.MustCompile(`R\$\s*([0-9][0-9.,]*)`),
}

// Seletores genéricos de nome de produto
var genericNameSelectors = []string{
	"h1.ui-pdp-title",
	"#productTitle",
	"h1[itemprop='name']",
	"h1.product-title",
	".product-name h1",
	"h1",
	".product-title",
	".product-name",
	"meta[property='og:title']",
}

var reWhitespace = regexp.MustCompile(`\s+`)

var nameSeparators = strings.NewReplacer("|", "-", "–", "-", "—", "-", "•", "-")

// ParsePrice converte um texto de preço em valor numérico, lidando com a
// ambiguidade entre os formatos brasileiro (1.234,56) e americano (1234.56).
// Retorna false quando o texto não contém um preço válido (> 0).
func ParsePrice(text string) (float64, bool) {
	if strings.HasPrefix(strings.TrimSpace(text), "-") {
		return 0, false
	}
	cleaned := reNonPrice.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, false
	}

	var normalized string
	switch {
	case reBrazilian.MatchString(cleaned):
		normalized = strings.ReplaceAll(cleaned, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
	case reUSDecimal.MatchString(cleaned):
		normalized = strings.ReplaceAll(cleaned, ",", "")
	case reCommaDecimal.MatchString(cleaned):
		normalized = strings.ReplaceAll(cleaned, ",", ".")
	case reInteger.MatchString(cleaned):
		normalized = cleaned
	default:
		// Última chance: conversão direta com vírgula como decimal,
		// aceita apenas valores plausíveis de preço
		normalized = strings.ReplaceAll(cleaned, ",", ".")
		value, err := strconv.ParseFloat(normalized, 64)
		if err != nil || value <= 0 || value >= 1_000_000 {
			return 0, false
		}
		return value, true
	}

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// ExtractPrice extrai o preço de um documento HTML. Tenta os seletores do
// site primeiro, depois os genéricos, depois os padrões sobre o HTML bruto.
// A primeira extração aceita por ParsePrice vence.
func ExtractPrice(doc *goquery.Document, site *SiteConfig) (float64, bool) {
	var selectors []string
	if site != nil {
		selectors = append(selectors, site.PriceSelectors...)
	}
	selectors = append(selectors, genericPriceSelectors...)

	for _, selector := range selectors {
		var price float64
		found := false
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if p, ok := ParsePrice(s.Text()); ok {
				price, found = p, true
				return false
			}
			for _, attr := range priceAttrs {
				if v, exists := s.Attr(attr); exists {
					if p, ok := ParsePrice(v); ok {
						price, found = p, true
						return false
					}
				}
			}
			return true
		})
		if found {
			return price, true
		}
	}

	if html, err := doc.Html(); err == nil {
		for _, re := range rawPricePatterns {
			if m := re.FindStringSubmatch(html); len(m) > 1 {
				if p, ok := ParsePrice(m[1]); ok {
					return p, true
				}
			}
		}
	}

	return 0, false
}

// ExtractProductName extrai o nome do produto de um documento HTML,
// caindo para o <title> da página se nenhum seletor encontrar nada.
func ExtractProductName(doc *goquery.Document, site *SiteConfig) (string, bool) {
	var selectors []string
	if site != nil {
		selectors = append(selectors, site.NameSelectors...)
	}
	selectors = append(selectors, genericNameSelectors...)

	for _, selector := range selectors {
		var name string
		found := false
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			candidate := s.Text()
			if strings.TrimSpace(candidate) == "" {
				candidate = s.AttrOr("content", "")
			}
			if n, ok := sanitizeName(candidate); ok {
				name, found = n, true
				return false
			}
			return true
		})
		if found {
			return name, true
		}
	}

	return sanitizeName(doc.Find("title").First().Text())
}

// sanitizeName normaliza espaços e quebras de linha, colapsa separadores
// em "-" e trunca em 150 caracteres. Rejeita candidatos vazios ou com 200
// caracteres ou mais.
func sanitizeName(raw string) (string, bool) {
	name := reWhitespace.ReplaceAllString(raw, " ")
	name = nameSeparators.Replace(name)
	name = strings.TrimSpace(name)

	runes := []rune(name)
	if len(runes) == 0 || len(runes) >= 200 {
		return "", false
	}
	if len(runes) > 150 {
		name = strings.TrimSpace(string(runes[:150]))
	}
	return name, true
}
