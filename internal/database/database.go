package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/yuribraga17/bot-fiscal-preco/internal/models"
)

// ErrProductNotFound é retornado quando o produto não existe no banco
var ErrProductNotFound = errors.New("produto não encontrado")

// Máximo de produtos retornados por ciclo de verificação
const maxDueBatch = 50

// DB encapsula a conexão com o banco de dados
type DB struct {
	conn *sqlx.DB
	path string
}

// New abre (ou cria) o banco de dados no caminho informado
func New(dbPath string) (*DB, error) {
	conn, err := sqlx.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, path: dbPath}

	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Println("Banco de dados inicializado com sucesso")
	return db, nil
}

// Close fecha a conexão com o banco de dados
func (db *DB) Close() error {
	return db.conn.Close()
}

// init cria as tabelas necessárias
func (db *DB) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		current_price REAL NOT NULL DEFAULT 0,
		last_price REAL,
		target_price REAL NOT NULL DEFAULT 0,
		promo_threshold REAL NOT NULL DEFAULT 0.1,
		active BOOLEAN NOT NULL DEFAULT 1,
		last_checked DATETIME,
		check_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		chat_id INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id),
		price REAL NOT NULL,
		change_percent REAL,
		source TEXT NOT NULL DEFAULT 'scraping',
		checked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_product ON price_history(product_id, checked_at);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}

	// Migração de bancos antigos. SQLite não suporta IF NOT EXISTS em
	// ALTER TABLE, então ignoramos o erro de coluna duplicada
	_, _ = db.conn.Exec("ALTER TABLE products ADD COLUMN promo_threshold REAL NOT NULL DEFAULT 0.1")
	_, _ = db.conn.Exec("ALTER TABLE products ADD COLUMN last_price REAL")

	return nil
}

// AddProduct adiciona um novo produto e retorna o ID gerado
func (db *DB) AddProduct(url, name string, targetPrice, promoThreshold float64, chatID, userID int64) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO products (url, name, target_price, promo_threshold, chat_id, user_id, active)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		url, name, targetPrice, promoThreshold, chatID, userID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindByID retorna um produto pelo ID
func (db *DB) FindByID(id int64) (*models.Product, error) {
	var p models.Product
	err := db.conn.Get(&p, "SELECT * FROM products WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindActive retorna todos os produtos ativos
func (db *DB) FindActive() ([]models.Product, error) {
	var products []models.Product
	err := db.conn.Select(&products,
		"SELECT * FROM products WHERE active = 1 ORDER BY created_at")
	return products, err
}

// FindByChatID retorna os produtos cadastrados por um chat (ativos primeiro)
func (db *DB) FindByChatID(chatID int64) ([]models.Product, error) {
	var products []models.Product
	err := db.conn.Select(&products,
		"SELECT * FROM products WHERE chat_id = ? ORDER BY active DESC, created_at", chatID)
	return products, err
}

// FindDueForCheck retorna os produtos ativos que precisam de verificação:
// nunca verificados ou verificados há mais tempo que o intervalo, com
// contagem de erros abaixo do teto. Os mais atrasados vêm primeiro
// (nunca verificados na frente de todos).
func (db *DB) FindDueForCheck(interval time.Duration, max int) ([]models.Product, error) {
	if max <= 0 || max > maxDueBatch {
		max = maxDueBatch
	}

	minutes := int(interval.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	var products []models.Product
	err := db.conn.Select(&products,
		`SELECT * FROM products
		 WHERE active = 1
		   AND error_count < ?
		   AND (last_checked IS NULL OR last_checked <= datetime('now', ?))
		 ORDER BY last_checked IS NOT NULL, last_checked ASC
		 LIMIT ?`,
		models.MaxErrorCount, fmt.Sprintf("-%d minutes", minutes), max,
	)
	return products, err
}

// UpdatePrice registra um novo preço: o atual vira o anterior, os
// contadores de erro zeram e o contador de verificações incrementa.
// Retorna o preço antigo e a variação percentual (nil na primeira vez).
func (db *DB) UpdatePrice(id int64, newPrice float64) (*models.PriceUpdate, error) {
	tx, err := db.conn.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current sql.NullFloat64
	err = tx.QueryRow("SELECT NULLIF(current_price, 0) FROM products WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	update := &models.PriceUpdate{NewPrice: newPrice}
	if current.Valid {
		old := current.Float64
		change := (newPrice - old) / old * 100
		update.OldPrice = &old
		update.ChangePercent = &change
	}

	_, err = tx.Exec(
		`UPDATE products
		 SET last_price = NULLIF(current_price, 0),
		     current_price = ?,
		     last_checked = CURRENT_TIMESTAMP,
		     check_count = check_count + 1,
		     error_count = 0,
		     last_error = ''
		 WHERE id = ?`,
		newPrice, id,
	)
	if err != nil {
		return nil, err
	}

	return update, tx.Commit()
}

// IncrementError registra uma falha de verificação. Ao atingir o teto de
// erros o produto é desativado automaticamente.
func (db *DB) IncrementError(id int64, message string) error {
	_, err := db.conn.Exec(
		`UPDATE products
		 SET error_count = error_count + 1,
		     last_error = ?,
		     last_checked = CURRENT_TIMESTAMP,
		     active = CASE WHEN error_count + 1 >= ? THEN 0 ELSE active END
		 WHERE id = ?`,
		truncateError(message), models.MaxErrorCount, id,
	)
	return err
}

// ReactivateStaleErrored reativa produtos desativados por excesso de erros
// cuja última verificação foi há mais de 24h, dando a falhas transitórias
// um caminho de recuperação
func (db *DB) ReactivateStaleErrored() (int64, error) {
	res, err := db.conn.Exec(
		`UPDATE products
		 SET active = 1, error_count = 0, last_error = ''
		 WHERE active = 0
		   AND error_count >= ?
		   AND last_checked IS NOT NULL
		   AND last_checked <= datetime('now', '-24 hours')`,
		models.MaxErrorCount,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AppendHistory insere um registro imutável de histórico de preço
func (db *DB) AppendHistory(productID int64, price float64, changePercent *float64, source string) error {
	_, err := db.conn.Exec(
		"INSERT INTO price_history (product_id, price, change_percent, source) VALUES (?, ?, ?, ?)",
		productID, price, changePercent, source,
	)
	return err
}

// GetHistory retorna os registros mais recentes de um produto
func (db *DB) GetHistory(productID int64, limit int) ([]models.PriceHistory, error) {
	if limit <= 0 {
		limit = 10
	}
	var history []models.PriceHistory
	err := db.conn.Select(&history,
		"SELECT * FROM price_history WHERE product_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?",
		productID, limit,
	)
	return history, err
}

// PurgeHistoryOlderThan apaga registros de histórico mais antigos que a
// janela de retenção e retorna quantos foram removidos
func (db *DB) PurgeHistoryOlderThan(days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	res, err := db.conn.Exec(
		"DELETE FROM price_history WHERE checked_at <= datetime('now', ?)",
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetActive ativa ou pausa o monitoramento de um produto
func (db *DB) SetActive(id int64, active bool) error {
	res, err := db.conn.Exec("UPDATE products SET active = ?, error_count = 0, last_error = '' WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Backup grava uma cópia íntegra do banco ao lado do arquivo original
// e retorna o caminho gerado
func (db *DB) Backup() (string, error) {
	dir := filepath.Dir(db.path)
	base := strings.TrimSuffix(filepath.Base(db.path), filepath.Ext(db.path))
	target := filepath.Join(dir, fmt.Sprintf("%s-backup-%s.db", base, time.Now().Format("20060102-150405")))

	if _, err := db.conn.Exec("VACUUM INTO ?", target); err != nil {
		return "", fmt.Errorf("backup do banco: %w", err)
	}
	return target, nil
}

func truncateError(message string) string {
	const max = 500
	if len(message) > max {
		return message[:max]
	}
	return message
}
