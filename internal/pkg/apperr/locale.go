package apperr

import "strings"

// DefaultLocale is used whenever Accept-Language names anything else.
const DefaultLocale = "zh"

var catalog = map[string]map[Code]string{
	"zh": {
		CodeBadParam:       "参数错误",
		CodeAuthToken:      "身份验证失败",
		CodeForbidden:      "无权访问该资源",
		CodeNotFound:       "资源不存在",
		CodeConflict:       "操作冲突",
		CodeQuotaExceeded:  "该提供方配额已用尽",
		CodeQuotaExhausted: "所有可用配额均已用尽",
		CodeSystem:         "系统内部错误",
		CodeVendor:         "第三方服务异常",
	},
	"en": {
		CodeBadParam:       "invalid parameter",
		CodeAuthToken:      "authentication failed",
		CodeForbidden:      "forbidden",
		CodeNotFound:       "resource not found",
		CodeConflict:       "operation conflict",
		CodeQuotaExceeded:  "quota exceeded for provider",
		CodeQuotaExhausted: "all quotas exhausted",
		CodeSystem:         "internal system error",
		CodeVendor:         "third-party vendor error",
	},
}

// ResolveLocale maps an Accept-Language header value to a supported
// locale, falling back to DefaultLocale for anything unrecognised.
func ResolveLocale(acceptLanguage string) string {
	al := strings.ToLower(acceptLanguage)
	if strings.HasPrefix(al, "en") {
		return "en"
	}
	if strings.HasPrefix(al, "zh") {
		return "zh"
	}
	return DefaultLocale
}

// Localize renders a code's message in locale, falling back to the
// error's own message text when the code has no catalog entry.
func Localize(locale string, code Code, fallback string) string {
	m, ok := catalog[locale]
	if !ok {
		m = catalog[DefaultLocale]
	}
	if msg, ok := m[code]; ok {
		return msg
	}
	return fallback
}
