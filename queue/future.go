package queue

import (
	"context"
	"sync"
)

// Future 一次提交的结果
type Future struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(v any, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done 在结果可用时关闭
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait 等待结果。ctx 结束时返回 ctx 的错误，但不影响操作本身。
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
