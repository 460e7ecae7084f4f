package clog

import "bytes"

// withBuffer 测试专用：把日志写入 buf，需配合 Output: "buffer"
func withBuffer(buf *bytes.Buffer) Option {
	return func(o *options) {
		o.buffer = buf
	}
}
