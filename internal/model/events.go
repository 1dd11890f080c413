package model

import "time"

// EventKind 监控事件类型
type EventKind int

const (
	Other EventKind = iota
	Created
)

func (k EventKind) String() string {
	if k == Created {
		return "CREATE"
	}
	return "OTHER"
}

// WatchEvent 从原始事件缓冲区解码出的一条记录, 用完即弃
type WatchEvent struct {
	Name string // 目录项名称, 不含路径
	Kind EventKind
}

// DeviceInfo 设备的 USB 身份 (从 sysfs 采集)
type DeviceInfo struct {
	Name       string // e.g., ttyACM1
	VendorID   string
	ProductID  string
	Serial     string
	Product    string
	Interfaces []string // bInterfaceClass, e.g., "02", "0a"
}

// SessionState 采集会话状态
type SessionState int

const (
	AwaitingDevice SessionState = iota
	Opening
	Streaming
	Closed
	Failed
)

func (s SessionState) String() string {
	switch s {
	case AwaitingDevice:
		return "awaiting_device"
	case Opening:
		return "opening"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// SessionResult 一次会话结束后的结果
type SessionResult struct {
	ID      string
	File    string // 未创建文件时为空
	Bytes   uint64
	State   SessionState // Closed 或 Failed
	Err     error
	Device  DeviceInfo
	Started time.Time
	Ended   time.Time
}
