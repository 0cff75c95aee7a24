package util

import (
	"strconv"
)

// ParseIntDefault 解析整数，失败或小于 min 时返回默认值
func ParseIntDefault(s string, def, min int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		return def
	}
	return n
}

// Pagination 解析分页参数，limit 上限 100
func Pagination(pageStr, limitStr string) (page, limit int) {
	page = ParseIntDefault(pageStr, 1, 1)
	limit = ParseIntDefault(limitStr, 20, 1)
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
