// Package stream 实现对助手后端 SSE 流式响应的增量解码。
package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"support-desk-go/internal/model"
	"support-desk-go/pkg/log"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// chatChunk 对应后端每个 data 帧携带的 JSON 负载。
type chatChunk struct {
	ChatID  string `json:"chat_id"`
	UserID  string `json:"user_id"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder 将一个字节流解码为有限、有序的 StreamDelta 序列。
//
// 解码按行缓冲：一行未读完（包括被任意字节边界截断的多字节字符）之前不做解析，
// 因此分块边界不影响解码结果。单行 JSON 损坏时丢弃该行并继续，绝不中断整个流。
// Decoder 不可重放；需要重新请求才能重新开始。
type Decoder struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

// NewDecoder 基于一个 HTTP 响应体创建解码器。
func NewDecoder(body io.ReadCloser) *Decoder {
	return &Decoder{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Next 返回流中的下一个增量帧。
// 流结束（底层流关闭或观测到哨兵帧）后返回 io.EOF。
func (d *Decoder) Next() (*model.StreamDelta, error) {
	if d.done {
		return nil, io.EOF
	}
	for {
		line, err := d.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		atEOF := err == io.EOF

		// 最后一行即使没有换行符也照常处理
		if delta := d.parseLine(line); delta != nil {
			if delta.Done {
				d.done = true
				return nil, io.EOF
			}
			return delta, nil
		}

		if atEOF {
			d.done = true
			return nil, io.EOF
		}
	}
}

// parseLine 解析一个完整行；空行、非 data 行与损坏行均返回 nil。
func (d *Decoder) parseLine(line string) *model.StreamDelta {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(trimmed, dataPrefix) {
		return nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, dataPrefix))
	if payload == doneSentinel {
		return &model.StreamDelta{Done: true}
	}

	var chunk chatChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// 单个损坏帧只记录并跳过
		log.Warnf("丢弃无法解析的流帧: %v", err)
		return nil
	}

	delta := &model.StreamDelta{ChatID: chunk.ChatID, UserID: chunk.UserID}
	if len(chunk.Choices) > 0 {
		delta.Content = chunk.Choices[0].Delta.Content
	}
	return delta
}

// Close 关闭底层响应体，用于消费方主动中止流。
// 已经消费的增量不会被回滚。
func (d *Decoder) Close() error {
	d.done = true
	return d.body.Close()
}
