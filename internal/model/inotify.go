package model

// InotifyEventHeaderSize struct inotify_event 定长头部的大小
const InotifyEventHeaderSize = 16

// 来自 <sys/inotify.h>
const (
	InCreate    uint32 = 0x00000100
	InQOverflow uint32 = 0x00004000
)

// InotifyEventHeader 对应 C 结构体 inotify_event 的头部
// 后面紧跟 Len 字节的名称 (以 \0 结尾并补齐对齐)
type InotifyEventHeader struct {
	Wd     int32
	Mask   uint32
	Cookie uint32
	Len    uint32

	// Name follows here
}

// struct inotify_event {
//     int      wd;       /* Watch descriptor */
//     uint32_t mask;     /* Mask describing event */
//     uint32_t cookie;   /* Unique cookie associating related events */
//     uint32_t len;      /* Size of name field */
//     char     name[];   /* Optional null-terminated name */
// };
