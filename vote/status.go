// Package vote 根据时间窗口推导投票实体的生命周期状态。
//
// 状态只有 Scheduled -> Open -> Closed 三种，始终是 (now, start, stop) 的纯函数，
// 不作为事实存储。Engine 按固定周期重新计算所有实体的状态并发出转换事件。
package vote

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceyewan/voteguard/xerrors"
)

// Status 投票实体的生命周期状态
type Status int

const (
	StatusScheduled Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus 解析状态名称，大小写不敏感
func ParseStatus(name string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "scheduled":
		return StatusScheduled, nil
	case "open":
		return StatusOpen, nil
	case "closed":
		return StatusClosed, nil
	default:
		return 0, xerrors.Wrapf(ErrUnknownStatus, "status %q", name)
	}
}

// MarshalText 以名称形式编码
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 MarshalText 输出的名称
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DeriveStatus 计算 now 时刻的状态：
// now < start 为 Scheduled，start <= now <= stop 为 Open，now > stop 为 Closed。
// start 或 stop 缺失时为 Scheduled。start == stop 时只有恰好在该时刻为 Open。
func DeriveStatus(now, start, stop time.Time) Status {
	if start.IsZero() || stop.IsZero() {
		return StatusScheduled
	}
	switch {
	case now.Before(start):
		return StatusScheduled
	case now.After(stop):
		return StatusClosed
	default:
		return StatusOpen
	}
}

// Entity 投票实体的时间窗口
type Entity struct {
	ID      string    `json:"id" mapstructure:"id" yaml:"id"`
	StartAt time.Time `json:"start_at" mapstructure:"start_at" yaml:"start_at"`
	StopAt  time.Time `json:"stop_at" mapstructure:"stop_at" yaml:"stop_at"`
}

// StatusAt 返回 now 时刻的状态
func (e Entity) StatusAt(now time.Time) Status {
	return DeriveStatus(now, e.StartAt, e.StopAt)
}

// EntityStatus 实体及其当前状态
type EntityStatus struct {
	Entity
	Status Status `json:"status"`
}

// Transition 一次观察到的状态变化
type Transition struct {
	ID   string    `json:"id"`
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}
