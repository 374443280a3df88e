// Package identifier 负责生成顺序递增的人类可读编号。
package identifier

import (
	"fmt"
	"strconv"
	"strings"
)

// Allocator 描述一个编号命名空间：固定前缀加零填充的递增数字后缀。
// Next 本身只做计算，不保证并发下的唯一性；唯一性由调用方在持久化时
// 通过行锁加唯一约束重试保证。
type Allocator struct {
	Prefix string
	Width  int
}

// 预定义的两个命名空间。
var (
	// Employee 生成员工编号，如 EP-ID-0001。
	Employee = Allocator{Prefix: "EP-ID-", Width: 4}
	// Batch 生成批次引用编号，如 REF-ID-000001。
	Batch = Allocator{Prefix: "REF-ID-", Width: 6}
)

// Next 根据命名空间中最后一个已发放的编号计算下一个编号。
// last 为空或后缀无法解析时按 0 处理，因此空库从 1 开始编号。
func (a Allocator) Next(last string) string {
	n := a.parse(last)
	return fmt.Sprintf("%s%0*d", a.Prefix, a.Width, n+1)
}

// parse 提取编号中最后一个 '-' 之后的数字后缀，失败返回 0。
func (a Allocator) parse(code string) int {
	idx := strings.LastIndex(code, "-")
	if idx < 0 || idx+1 >= len(code) {
		return 0
	}
	n, err := strconv.Atoi(code[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
