// Package llm 提供与外部补全服务交互的客户端
// 服务按 OpenAI Chat Completions 协议访问，支持一次性返回与 SSE 流式返回
// 各种响应形态在这一层归一化为 Envelope，核心逻辑不感知具体的载荷结构
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"humanly-server/internal/config"
)

// FallbackReply 所有已知载荷形态都不匹配时的兜底回复
const FallbackReply = "抱歉，我这次没能给出回复，请再试一次。"

// Message 发送给补全服务的单条消息
type Message struct {
	Role    string `json:"role"`    // system / user / assistant
	Content string `json:"content"` // 消息内容
}

// Usage 补全服务报告的用量信息
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Envelope 归一化后的补全结果
// 无论服务端返回哪种载荷形态，核心逻辑只消费这个结构
type Envelope struct {
	Text  string // 回复文本
	Usage *Usage // 用量信息，服务端未报告时为 nil
}

// Client 补全服务客户端
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewClient 创建 Client 实例
// 参数:
//   - cfg: 应用配置（包含 AI 服务连接信息）
//
// 返回:
//   - *Client: 客户端实例
func NewClient(cfg *config.Config) *Client {
	return &Client{
		apiKey:  cfg.AI.APIKey,
		baseURL: strings.TrimSuffix(cfg.AI.BaseURL, "/"),
		model:   cfg.AI.Model,
		client: &http.Client{
			Timeout: cfg.AI.Timeout, // 设置超时
		},
	}
}

// chatRequest Chat Completions 请求结构
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Complete 发起一次性补全请求
// 参数:
//   - ctx: 上下文
//   - messages: 上下文窗口（含系统提示词和新消息）
//
// 返回:
//   - *Envelope: 归一化结果
//   - error: 网络错误或服务端错误
func (c *Client) Complete(ctx context.Context, messages []Message) (*Envelope, error) {
	if c.apiKey == "" {
		return nil, errors.New("AI service not configured (missing API key)")
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return DecodeEnvelope(bodyBytes), nil
}

// Stream 发起流式补全请求
// 服务端以 SSE 返回增量，每个增量通过 onDelta 回调上抛
// 流结束后返回完整文本的 Envelope
// 参数:
//   - ctx: 上下文
//   - messages: 上下文窗口
//   - onDelta: 增量回调，可以为 nil
//
// 返回:
//   - *Envelope: 归一化结果（完整文本）
//   - error: 网络错误或服务端错误
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(delta string)) (*Envelope, error) {
	if c.apiKey == "" {
		return nil, errors.New("AI service not configured (missing API key)")
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("completion service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// 逐行解析 SSE 流
	// 格式: "data: {...}"，以 "data: [DONE]" 结束
	// 无法解析的行直接跳过，不中断整条流
	var full strings.Builder
	var usage *Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Content string `json:"content"` // 直接内容字段
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Usage *Usage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// 畸形行只跳过
			continue
		}

		delta := chunk.Content
		if delta == "" && len(chunk.Choices) > 0 {
			delta = chunk.Choices[0].Delta.Content
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if delta == "" {
			continue
		}

		full.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		// 已经收到部分内容时不丢弃，按成功处理
		if full.Len() == 0 {
			return nil, fmt.Errorf("failed to read completion stream: %w", err)
		}
	}

	text := strings.TrimSpace(full.String())
	if text == "" {
		text = FallbackReply
	}

	return &Envelope{Text: text, Usage: usage}, nil
}

// post 发送 HTTP 请求
func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call completion service: %w", err)
	}
	return resp, nil
}

// DecodeEnvelope 将任意形态的响应体归一化为 Envelope
// 历史上补全服务的返回形态并不统一，按优先级依次探测：
//  1. content 字段
//  2. response 字段
//  3. extractedContent 字段
//  4. OpenAI 风格 choices[0].message.content
//  5. 裸字符串
//
// 全部不匹配时使用兜底回复
// 参数:
//   - data: 原始响应体
//
// 返回:
//   - *Envelope: 归一化结果，永不为 nil
func DecodeEnvelope(data []byte) *Envelope {
	var probe struct {
		Content          string `json:"content"`
		Response         string `json:"response"`
		ExtractedContent string `json:"extractedContent"`
		Choices          []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *Usage `json:"usage"`
	}

	if err := json.Unmarshal(data, &probe); err == nil {
		for _, candidate := range []string{probe.Content, probe.Response, probe.ExtractedContent} {
			if strings.TrimSpace(candidate) != "" {
				return &Envelope{Text: strings.TrimSpace(candidate), Usage: probe.Usage}
			}
		}
		if len(probe.Choices) > 0 && strings.TrimSpace(probe.Choices[0].Message.Content) != "" {
			return &Envelope{Text: strings.TrimSpace(probe.Choices[0].Message.Content), Usage: probe.Usage}
		}
	}

	// 裸字符串（带引号的 JSON 字符串）
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil && strings.TrimSpace(raw) != "" {
		return &Envelope{Text: strings.TrimSpace(raw)}
	}

	return &Envelope{Text: FallbackReply}
}
