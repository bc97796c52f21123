package service

import (
	"strings"

	"github.com/mssola/useragent"
)

// ClientInfo 是从 User-Agent 中解析出的客户端特征，解析失败时字段为空
type ClientInfo struct {
	Browser  string
	OS       string
	Platform string
	Mobile   bool
}

// ParseClientInfo 解析 User-Agent 字符串
func ParseClientInfo(userAgent string) ClientInfo {
	if strings.TrimSpace(userAgent) == "" {
		return ClientInfo{}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	return ClientInfo{
		Browser:  browser,
		OS:       ua.OS(),
		Platform: ua.Platform(),
		Mobile:   ua.Mobile(),
	}
}

// Username 返回 "<platform> <os>" 形式的展示名，可能为空
func (c ClientInfo) Username() string {
	return strings.TrimSpace(c.Platform + " " + c.OS)
}

// DeviceName 返回设备的默认名称
func (c ClientInfo) DeviceName() string {
	switch {
	case c.Browser != "" && c.OS != "":
		return c.Browser + " on " + c.OS
	case c.Browser != "":
		return c.Browser
	case c.OS != "":
		return c.OS
	default:
		return "Unknown device"
	}
}
