// Package usbinfo 从 sysfs 采集 tty 设备背后的 USB 身份信息.
package usbinfo

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Hara602/devreader/internal/model"
)

const unknown = "unknown"

// Prober 在 SysRoot 下查找设备信息, 测试时可指向临时目录
type Prober struct {
	SysRoot string
}

// Lookup 使用真实的 /sys
func Lookup(name string) model.DeviceInfo {
	return Prober{SysRoot: "/sys"}.Lookup(name)
}

// Lookup 找不到的字段填 "unknown", 从不返回错误
func (p Prober) Lookup(name string) model.DeviceInfo {
	info := model.DeviceInfo{
		Name:      name,
		VendorID:  unknown,
		ProductID: unknown,
		Serial:    unknown,
		Product:   unknown,
	}

	// /sys/class/tty/ttyACM1/device -> ../../../1-1:1.0
	realPath, err := filepath.EvalSymlinks(filepath.Join(p.SysRoot, "class", "tty", name, "device"))
	if err != nil {
		return info
	}

	usbRoot := p.findUSBRoot(realPath)
	if usbRoot == "" {
		return info
	}
	info.VendorID = readFile(filepath.Join(usbRoot, "idVendor"))
	info.ProductID = readFile(filepath.Join(usbRoot, "idProduct"))
	info.Serial = readFile(filepath.Join(usbRoot, "serial"))
	info.Product = readFile(filepath.Join(usbRoot, "product"))
	info.Interfaces = interfaceClasses(usbRoot)
	return info
}

// findUSBRoot 向上查找包含 idVendor 的目录（即 USB Device 根目录）
func (p Prober) findUSBRoot(path string) string {
	root := filepath.Clean(p.SysRoot)
	dir := path
	// 最多回溯 10 层
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
		if dir == root || dir == "/" || dir == "." {
			break
		}
	}
	return ""
}

// interfaceClasses 遍历接口目录 (例如 1-1:1.0) 收集 bInterfaceClass
// CDC ACM 设备通常是 02 (通信) + 0a (数据)
func interfaceClasses(usbRoot string) []string {
	entries, err := os.ReadDir(usbRoot)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if !strings.Contains(e.Name(), ":") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(usbRoot, e.Name(), "bInterfaceClass"))
		if err != nil {
			continue
		}
		if code := strings.TrimSpace(string(content)); code != "" {
			seen[code] = true
		}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return unknown
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return unknown
}
