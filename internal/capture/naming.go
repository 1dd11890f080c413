package capture

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const DefaultPrefix = "devreader"

// NameFunc 生成会话文件名 (不含目录)
type NameFunc func() string

// TimestampNamer prefix_YYYY_MM_DD_hhmmss.bin, 本地时间
func TimestampNamer(prefix string, now func() time.Time) NameFunc {
	return func() string {
		t := now()
		return fmt.Sprintf("%s_%04d_%02d_%02d_%02d%02d%02d.bin",
			prefix, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
}

// Distinct 同一秒内连续生成相同名字时追加序号, 避免新会话截断上一个文件
func Distinct(next NameFunc) NameFunc {
	var last string
	var seq int
	return func() string {
		name := next()
		if name != last {
			last, seq = name, 0
			return name
		}
		seq++
		ext := filepath.Ext(name)
		return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), seq, ext)
	}
}
