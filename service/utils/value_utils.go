/*
 * @module service/utils/value_utils
 * @description 字段值转换工具，提供类型强转、日期多布局解析、文本规整和编码转换
 * @architecture 工具函数模式，无状态
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 无状态转换：输入 -> 转换逻辑 -> 输出
 * @rules 转换失败返回显式标记，不吞异常；编码转换支持GBK/GB18030来源数据
 * @dependencies github.com/spf13/cast, golang.org/x/text
 * @refs service/detection, service/correction
 */

package utils

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// DateLayouts 检测和修正共用的日期布局，按出现频率排序
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
}

var (
	whitespaceRegexp    = regexp.MustCompile(`\s+`)
	dateSeparatorRegexp = regexp.MustCompile(`[/\-.]`)
)

// ToString 字段值转字符串，nil 返回空串
func ToString(value interface{}) string {
	if value == nil {
		return ""
	}
	return cast.ToString(value)
}

// ToFloat 字段值转浮点数，第二个返回值表示是否可转换
func ToFloat(value interface{}) (float64, bool) {
	if value == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseDate 按已知布局依次尝试解析日期，返回命中的布局
func ParseDate(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout, true
		}
	}
	return time.Time{}, "", false
}

// RepairDate 对无法按已知布局解析的日期尝试分量级修复
// 以四位分量定位年份；日月越界时先尝试互换，仍越界则钳制到合法日历范围
// 无法识别三段数值分量或年份时不做猜测，返回失败
func RepairDate(s string) (time.Time, bool) {
	parts := dateSeparatorRegexp.Split(strings.TrimSpace(s), -1)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	var year, month, day int
	switch {
	case len(parts[0]) == 4:
		year, month, day = nums[0], nums[1], nums[2]
	case len(parts[2]) == 4:
		day, month, year = nums[0], nums[1], nums[2]
	default:
		return time.Time{}, false
	}

	if month > 12 && day <= 12 {
		day, month = month, day
	}
	if month < 1 {
		month = 1
	} else if month > 12 {
		month = 12
	}
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day < 1 {
		day = 1
	} else if day > lastDay {
		day = lastDay
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// NormalizeText 去除首尾空白并压缩连续空白字符
func NormalizeText(s string) string {
	return whitespaceRegexp.ReplaceAllString(strings.TrimSpace(s), " ")
}

// DecodeGBK 将GBK/GB18030编码的字节流转换为UTF-8字符串
// 上游部分数据源导出文件为GBK编码，入管道前统一转换
func DecodeGBK(data []byte) (string, error) {
	reader := transform.NewReader(strings.NewReader(string(data)), simplifiedchinese.GB18030.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// DecodeValue 非UTF-8的字符串值按GBK来源转码，其余值原样返回
func DecodeValue(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok || utf8.ValidString(s) {
		return value
	}
	decoded, err := DecodeGBK([]byte(s))
	if err != nil {
		return value
	}
	return decoded
}

// NormalizeEncoding 返回记录的编码规整副本，原始记录不被修改
// 记录入管道前统一执行，保证检测与落库处理的都是UTF-8值
func NormalizeEncoding(record map[string]interface{}) map[string]interface{} {
	normalized := make(map[string]interface{}, len(record))
	for field, value := range record {
		normalized[field] = DecodeValue(value)
	}
	return normalized
}

// CloneRecord 浅拷贝一条记录，检测和修正不得修改调用方传入的原始记录
func CloneRecord(record map[string]interface{}) map[string]interface{} {
	cloned := make(map[string]interface{}, len(record))
	for k, v := range record {
		cloned[k] = v
	}
	return cloned
}
