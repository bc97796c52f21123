// Package gateway 实现把成员事件推送给在线客户端的发布器。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clipsync/internal/domain"
)

// ChannelPrefix 是 Centrifugo 私有频道前缀
const ChannelPrefix = "$"

// Envelope 是客户端收到的消息体
type Envelope struct {
	Event domain.EventKind `json:"event"`
	Data  map[string]any   `json:"data"`
}

type centrifugoCommand struct {
	Method string           `json:"method"`
	Params centrifugoParams `json:"params"`
}

type centrifugoParams struct {
	Channel string   `json:"channel"`
	Data    Envelope `json:"data"`
}

type centrifugoReply struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CentrifugoPublisher 通过 Centrifugo 服务端 HTTP API 发布消息
type CentrifugoPublisher struct {
	url    string
	apiKey string
	client *http.Client
}

// NewCentrifugoPublisher 创建发布器。client 为空时使用带超时的默认客户端。
func NewCentrifugoPublisher(url, apiKey string, client *http.Client) *CentrifugoPublisher {
	if url == "" {
		panic("centrifugo url cannot be empty for CentrifugoPublisher")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &CentrifugoPublisher{url: url, apiKey: apiKey, client: client}
}

// Publish 把事件发布到 $<channel>
func (p *CentrifugoPublisher) Publish(ctx context.Context, channel string, kind domain.EventKind, payload map[string]any) error {
	body, err := json.Marshal(centrifugoCommand{
		Method: "publish",
		Params: centrifugoParams{
			Channel: ChannelPrefix + channel,
			Data:    Envelope{Event: kind, Data: payload},
		},
	})
	if err != nil {
		return fmt.Errorf("centrifugo: marshal publish command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("centrifugo: build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "apikey "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("centrifugo: publish request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("centrifugo: publish to %s returned %s", channel, resp.Status)
	}

	// Centrifugo 在 200 响应中也可能携带命令错误
	var reply centrifugoReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil && err != io.EOF {
		return fmt.Errorf("centrifugo: decode publish reply: %w", err)
	}
	if reply.Error != nil {
		return fmt.Errorf("centrifugo: publish to %s failed: %d %s", channel, reply.Error.Code, reply.Error.Message)
	}
	return nil
}
