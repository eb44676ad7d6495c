package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{"formato brasileiro", "1.234,56", 1234.56, true},
		{"formato americano", "1234.56", 1234.56, true},
		{"americano com milhar", "1,234.56", 1234.56, true},
		{"vírgula decimal", "1234,56", 1234.56, true},
		{"inteiro", "1234", 1234, true},
		{"com símbolo de moeda", "R$ 99,90", 99.90, true},
		{"com espaços", "  2.499,00  ", 2499, true},
		{"centavo único", "9,9", 9.9, true},
		{"texto puro", "abc", 0, false},
		{"negativo", "-5", 0, false},
		{"zero", "0", 0, false},
		{"vazio", "", 0, false},
		{"só separadores", ",.", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestParsePriceFirstMatchWins(t *testing.T) {
	// "1.234,56" deve ser lido como brasileiro (1234.56), nunca
	// reinterpretado como outro formato
	got, ok := ParsePrice("1.234,56")
	require.True(t, ok)
	assert.InDelta(t, 1234.56, got, 0.001)

	// "12,34" casa com vírgula decimal antes de qualquer fallback
	got, ok = ParsePrice("12,34")
	require.True(t, ok)
	assert.InDelta(t, 12.34, got, 0.001)
}

func TestExtractPriceFromSelectors(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<span class="price">R$ 1.299,90</span>
	</body></html>`)

	price, ok := ExtractPrice(doc, nil)
	require.True(t, ok)
	assert.InDelta(t, 1299.90, price, 0.001)
}

func TestExtractPriceSiteSelectorsFirst(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<span class="preco-final">R$ 100,00</span>
		<span class="price">R$ 200,00</span>
	</body></html>`)

	site := &SiteConfig{PriceSelectors: []string{".preco-final"}}
	price, ok := ExtractPrice(doc, site)
	require.True(t, ok)
	assert.InDelta(t, 100, price, 0.001)

	// Sem configuração do site, vale a cascata genérica
	price, ok = ExtractPrice(doc, nil)
	require.True(t, ok)
	assert.InDelta(t, 200, price, 0.001)
}

func TestExtractPriceGenericOrder(t *testing.T) {
	// .sales-price vem antes de .price na lista genérica
	doc := docFromHTML(t, `<html><body>
		<span class="price">R$ 200,00</span>
		<span class="sales-price">R$ 150,00</span>
	</body></html>`)

	price, ok := ExtractPrice(doc, nil)
	require.True(t, ok)
	assert.InDelta(t, 150, price, 0.001)
}

func TestExtractPriceFromAttributes(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<span class="price" data-price="1.499,00"></span>
	</body></html>`)

	price, ok := ExtractPrice(doc, nil)
	require.True(t, ok)
	assert.InDelta(t, 1499, price, 0.001)
}

func TestExtractPriceFromMetaTag(t *testing.T) {
	doc := docFromHTML(t, `<html><head>
		<meta property="product:price:amount" content="123.45">
	</head><body></body></html>`)

	price, ok := ExtractPrice(doc, nil)
	require.True(t, ok)
	assert.InDelta(t, 123.45, price, 0.001)
}

func TestExtractPriceFromEmbeddedJSON(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<script type="application/ld+json">{"offers":{"price":"1.234,56"}}</script>
	</body></html>`)

	price, ok := ExtractPrice(doc, nil)
	require.True(t, ok)
	assert.InDelta(t, 1234.56, price, 0.001)
}

func TestExtractPriceCurrencyPrefixFallback(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<div>Por apenas R$ 59,90 à vista</div>
	</body></html>`)

	price, ok := ExtractPrice(doc, nil)
	require.True(t, ok)
	assert.InDelta(t, 59.90, price, 0.001)
}

func TestExtractPriceNotFound(t *testing.T) {
	doc := docFromHTML(t, `<html><body><p>Produto indisponível</p></body></html>`)

	_, ok := ExtractPrice(doc, nil)
	assert.False(t, ok)
}

func TestExtractPriceIdempotent(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<span class="price">R$ 1.299,90</span>
		<span class="price">R$ 999,00</span>
	</body></html>`)

	first, ok1 := ExtractPrice(doc, nil)
	second, ok2 := ExtractPrice(doc, nil)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}

func TestExtractProductName(t *testing.T) {
	doc := docFromHTML(t, `<html><head><title>Loja X</title></head><body>
		<h1>  Notebook   Gamer
		XYZ  </h1>
	</body></html>`)

	name, ok := ExtractProductName(doc, nil)
	require.True(t, ok)
	assert.Equal(t, "Notebook Gamer XYZ", name)
}

func TestExtractProductNameTitleFallback(t *testing.T) {
	doc := docFromHTML(t, `<html><head><title>Mouse sem fio | Loja Y</title></head><body></body></html>`)

	name, ok := ExtractProductName(doc, nil)
	require.True(t, ok)
	assert.Equal(t, "Mouse sem fio - Loja Y", name)
}

func TestExtractProductNameSiteSelectorFirst(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<h1>Título genérico</h1>
		<h2 class="nome-produto">Nome específico</h2>
	</body></html>`)

	site := &SiteConfig{NameSelectors: []string{".nome-produto"}}
	name, ok := ExtractProductName(doc, site)
	require.True(t, ok)
	assert.Equal(t, "Nome específico", name)
}

func TestExtractProductNameTooLongRejected(t *testing.T) {
	long := strings.Repeat("a", 250)
	doc := docFromHTML(t, `<html><head><title>Título curto</title></head><body><h1>`+long+`</h1></body></html>`)

	// O h1 gigante é rejeitado e o <title> assume
	name, ok := ExtractProductName(doc, nil)
	require.True(t, ok)
	assert.Equal(t, "Título curto", name)
}

func TestExtractProductNameTruncation(t *testing.T) {
	name180 := strings.Repeat("b", 180)
	doc := docFromHTML(t, `<html><body><h1>`+name180+`</h1></body></html>`)

	name, ok := ExtractProductName(doc, nil)
	require.True(t, ok)
	assert.Len(t, []rune(name), 150)
}

func TestExtractProductNameNotFound(t *testing.T) {
	doc := docFromHTML(t, `<html><body></body></html>`)

	_, ok := ExtractProductName(doc, nil)
	assert.False(t, ok)
}
