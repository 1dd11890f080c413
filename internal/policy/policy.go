// Package policy 保存不允许采集的设备列表 (sqlite).
package policy

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// AnySerial 匹配同一 vid/pid 的所有序列号
const AnySerial = "*"

// Rule 一条阻止规则
type Rule struct {
	VendorID  string
	ProductID string
	Serial    string
	Reason    string
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Open 打开数据库并初始化表结构
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 联合主键 (vid, pid, serial) 防止重复
	schema := `
	CREATE TABLE IF NOT EXISTS blocklist (
		vid TEXT,
		pid TEXT,
		serial TEXT,
		reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (vid, pid, serial)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &Store{db: db}, nil
}

// IsBlocked 精确匹配或通配序列号
// 查询失败时返回 false 和错误, 由调用方决定是否放行
func (s *Store) IsBlocked(vid, pid, serial string) (bool, string, error) {
	var reason string
	err := s.db.QueryRow(
		`SELECT reason FROM blocklist WHERE vid = ? AND pid = ? AND (serial = ? OR serial = ?)
		 ORDER BY serial = ? DESC LIMIT 1`,
		vid, pid, serial, AnySerial, serial,
	).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("query blocklist: %w", err)
	}
	return true, reason, nil
}

func (s *Store) Block(vid, pid, serial, reason string) error {
	if vid == "" || pid == "" {
		return errors.New("vid and pid are required")
	}
	if serial == "" {
		serial = AnySerial
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO blocklist(vid, pid, serial, reason) VALUES (?, ?, ?, ?)",
		vid, pid, serial, reason,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Unblock 返回是否删除了规则
func (s *Store) Unblock(vid, pid, serial string) (bool, error) {
	if serial == "" {
		serial = AnySerial
	}
	res, err := s.db.Exec("DELETE FROM blocklist WHERE vid = ? AND pid = ? AND serial = ?", vid, pid, serial)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) List() ([]Rule, error) {
	rows, err := s.db.Query("SELECT vid, pid, serial, reason, created_at FROM blocklist ORDER BY vid, pid, serial")
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		var reason sql.NullString
		var created any
		if err := rows.Scan(&r.VendorID, &r.ProductID, &r.Serial, &reason, &created); err != nil {
			return nil, err
		}
		r.Reason = reason.String
		r.CreatedAt = parseTime(created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// parseTime 驱动可能返回 time.Time 或文本
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	}
	return time.Time{}
}

func parseTimeString(s string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
