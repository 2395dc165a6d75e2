// Package script 生成注入嵌入文档执行的定位校验脚本
package script

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"locatorcheck/pkg/model"
)

// 脚本写入文档的固定标记，重复执行时据此清理
const (
	MarkerAttr     = "data-locatorcheck"
	HighlightClass = "locatorcheck-highlight"
	TooltipClass   = "locatorcheck-tooltip"
	ResultVar      = "__locatorcheck"
)

const (
	DefaultMatchTTL = 5 * time.Second
	DefaultErrorTTL = 3 * time.Second
)

// ErrInvalidLocator 定位表达式为空或不是合法 UTF-8
var ErrInvalidLocator = errors.New("invalid locator")

// CheckLocator 校验定位表达式。非法 UTF-8 会被 Literal 替换为 U+FFFD，
// 校验的将不再是用户输入的表达式，因此在生成脚本之前拒绝。
func CheckLocator(locator string) error {
	if strings.TrimSpace(locator) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLocator)
	}
	if !utf8.ValidString(locator) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidLocator)
	}
	return nil
}

//go:embed verify.js
var verifyJS string

// Options 脚本生成选项
type Options struct {
	MatchTTL time.Duration
	ErrorTTL time.Duration
}

// Synthesize 使用默认选项生成校验脚本
func Synthesize(locator string) model.Script {
	return SynthesizeWith(locator, Options{})
}

// SynthesizeWith 生成校验脚本，定位表达式只经 Literal 转义一次
func SynthesizeWith(locator string, opt Options) model.Script {
	if opt.MatchTTL <= 0 {
		opt.MatchTTL = DefaultMatchTTL
	}
	if opt.ErrorTTL <= 0 {
		opt.ErrorTTL = DefaultErrorTTL
	}
	r := strings.NewReplacer(
		"__MARK_ATTR__", MarkerAttr,
		"__HIGHLIGHT_CLASS__", HighlightClass,
		"__TOOLTIP_CLASS__", TooltipClass,
		"__RESULT_VAR__", ResultVar,
		"__MATCH_TTL__", strconv.FormatInt(opt.MatchTTL.Milliseconds(), 10),
		"__ERROR_TTL__", strconv.FormatInt(opt.ErrorTTL.Milliseconds(), 10),
	)
	src := r.Replace(verifyJS)
	// 定位表达式最后替换，避免其内容被当作占位符
	src = strings.Replace(src, "__LOCATOR__", Literal(locator), 1)
	return model.Script(src)
}

// Literal 将任意字符串转为双引号 JS 字符串字面量。
// 引号与反斜杠均被转义；< > & 与行分隔符转为 \u 形式，
// 因此结果既不会提前结束字符串，也不会在 <script> 内闭合标签。
// 非法 UTF-8 字节按 U+FFFD 输出，调用方应先经 CheckLocator 校验。
func Literal(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '<', '>', '&', '`', '\u2028', '\u2029':
			writeUnicode(&b, r)
		default:
			if r < 0x20 || r == 0x7f {
				writeUnicode(&b, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func writeUnicode(b *strings.Builder, r rune) {
	const hex = "0123456789abcdef"
	b.WriteString(`\u`)
	b.WriteByte(hex[(r>>12)&0xf])
	b.WriteByte(hex[(r>>8)&0xf])
	b.WriteByte(hex[(r>>4)&0xf])
	b.WriteByte(hex[r&0xf])
}
