// Package store 用 SQLite 落地交易、信号、告警和系统状态。
// 单连接模式，所有表在启动时幂等迁移。
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore 实现 ports.Store
type SQLiteStore struct {
	db *sql.DB
}

func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir db dir")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
