package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"quantbt/internal/market"
)

// Manifest 描述单个 symbol@timeframe 数据文件的覆盖范围。
type Manifest struct {
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	CandleCount int64  `json:"candle_count"`
	MinTime     int64  `json:"min_time"`
	MaxTime     int64  `json:"max_time"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Store 以每个 symbol@timeframe 一个 sqlite 文件的方式缓存 K 线。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("数据目录不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for key, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, key)
	}
	return firstErr
}

func (s *Store) dbPath(symbol, timeframe string) string {
	return filepath.Join(s.root, strings.ToUpper(symbol), timeframe+".db")
}

func (s *Store) openDB(symbol, timeframe string) (*sql.DB, error) {
	key := strings.ToUpper(symbol) + "@" + timeframe
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok {
		return db, nil
	}
	path := s.dbPath(symbol, timeframe)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据子目录失败: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据文件失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	s.dbs[key] = db
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS candles (
    open_time  INTEGER PRIMARY KEY,
    close_time INTEGER NOT NULL,
    open       REAL NOT NULL,
    high       REAL NOT NULL,
    low        REAL NOT NULL,
    close      REAL NOT NULL,
    volume     REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS manifest (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    symbol       TEXT NOT NULL,
    timeframe    TEXT NOT NULL,
    candle_count INTEGER NOT NULL,
    min_time     INTEGER NOT NULL,
    max_time     INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("初始化数据表失败: %w", err)
	}
	return nil
}

// InsertCandles 幂等写入 K 线并刷新清单。
func (s *Store) InsertCandles(ctx context.Context, symbol, timeframe string, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	db, err := s.openDB(symbol, timeframe)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO candles (open_time, close_time, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(open_time) DO UPDATE SET
    close_time = excluded.close_time,
    open = excluded.open,
    high = excluded.high,
    low = excluded.low,
    close = excluded.close,
    volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("写入 K 线失败: %w", err)
		}
	}
	if err := refreshManifest(ctx, tx, symbol, timeframe); err != nil {
		return err
	}
	return tx.Commit()
}

func refreshManifest(ctx context.Context, tx *sql.Tx, symbol, timeframe string) error {
	var count, minTime, maxTime sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*), MIN(open_time), MAX(open_time) FROM candles`)
	if err := row.Scan(&count, &minTime, &maxTime); err != nil {
		return fmt.Errorf("统计 K 线失败: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO manifest (id, symbol, timeframe, candle_count, min_time, max_time, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    candle_count = excluded.candle_count,
    min_time = excluded.min_time,
    max_time = excluded.max_time,
    updated_at = excluded.updated_at`,
		strings.ToUpper(symbol), timeframe, count.Int64, minTime.Int64, maxTime.Int64, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("刷新清单失败: %w", err)
	}
	return nil
}

// RangeCandles 返回 [start, end) 内的 K 线，按 open_time 升序。
func (s *Store) RangeCandles(ctx context.Context, symbol, timeframe string, start, end int64) ([]market.Candle, error) {
	db, err := s.openDB(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
SELECT open_time, close_time, open, high, low, close, volume
FROM candles WHERE open_time >= ? AND open_time < ?
ORDER BY open_time ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("查询 K 线失败: %w", err)
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("读取 K 线失败: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Manifest 返回单个数据文件的覆盖清单，文件不存在时返回空清单。
func (s *Store) Manifest(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	if _, err := os.Stat(s.dbPath(symbol, timeframe)); os.IsNotExist(err) {
		return Manifest{Symbol: strings.ToUpper(symbol), Timeframe: timeframe}, nil
	}
	db, err := s.openDB(symbol, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	row := db.QueryRowContext(ctx, `SELECT symbol, timeframe, candle_count, min_time, max_time, updated_at FROM manifest WHERE id = 1`)
	if err := row.Scan(&m.Symbol, &m.Timeframe, &m.CandleCount, &m.MinTime, &m.MaxTime, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Manifest{Symbol: strings.ToUpper(symbol), Timeframe: timeframe}, nil
		}
		return Manifest{}, fmt.Errorf("读取清单失败: %w", err)
	}
	return m, nil
}

// Manifests 扫描数据目录下所有数据文件并汇总清单。
func (s *Store) Manifests(ctx context.Context) ([]Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("扫描数据目录失败: %w", err)
	}
	var out []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, ".db") {
				continue
			}
			timeframe := strings.TrimSuffix(name, ".db")
			m, err := s.Manifest(ctx, entry.Name(), timeframe)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}
	return out, nil
}
