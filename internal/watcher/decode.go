package watcher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/Hara602/devreader/internal/model"
)

var ErrTruncatedEvent = errors.New("truncated inotify event")

// DecodeEvents 惰性解码一次 read 得到的 inotify 缓冲区
// 缓冲区结构: [header][name] [header][name] ...
func DecodeEvents(buf []byte) iter.Seq2[model.WatchEvent, error] {
	return func(yield func(model.WatchEvent, error) bool) {
		offset := 0
		for offset < len(buf) {
			if len(buf)-offset < model.InotifyEventHeaderSize {
				yield(model.WatchEvent{}, fmt.Errorf("%w: header at offset %d", ErrTruncatedEvent, offset))
				return
			}

			var hdr model.InotifyEventHeader
			reader := bytes.NewReader(buf[offset : offset+model.InotifyEventHeaderSize])
			if err := binary.Read(reader, binary.NativeEndian, &hdr); err != nil {
				yield(model.WatchEvent{}, err)
				return
			}

			start := offset + model.InotifyEventHeaderSize
			end := start + int(hdr.Len)
			if end > len(buf) || end < start {
				yield(model.WatchEvent{}, fmt.Errorf("%w: name of %d bytes at offset %d", ErrTruncatedEvent, hdr.Len, offset))
				return
			}

			// 名称以 \0 结尾, 后面是对齐填充
			nameBuf := buf[start:end]
			if idx := bytes.IndexByte(nameBuf, 0); idx != -1 {
				nameBuf = nameBuf[:idx]
			}

			ev := model.WatchEvent{Name: string(nameBuf), Kind: model.Other}
			if hdr.Mask&model.InCreate != 0 {
				ev.Kind = model.Created
			}
			if !yield(ev, nil) {
				return
			}
			offset = end
		}
	}
}
