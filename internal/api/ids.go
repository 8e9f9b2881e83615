package api

import (
	"sync/atomic"
	"time"

	"github.com/jxskiss/base62"
)

// nextClientOrderID 生成快捷下单用的客户端订单ID。
// 时间戳拼接进程内递增序号后做base62编码，保证同毫秒内的多笔下单也不会撞号。
func (c *Client) nextClientOrderID() string {
	seq := atomic.AddUint64(&c.idSeq, 1)
	raw := uint64(time.Now().UnixMilli())<<16 | (seq & 0xffff)
	return "dash-" + string(base62.FormatUint(raw))
}
