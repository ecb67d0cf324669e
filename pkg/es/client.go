// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"support-desk-go/internal/config"
	"support-desk-go/pkg/log"
)

var ESClient *elasticsearch.Client

// ticketMapping 工单索引：标题与描述参与全文检索，其余为过滤字段。
const ticketMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "org_id":      {"type": "keyword"},
      "title":       {"type": "text"},
      "description": {"type": "text"},
      "status":      {"type": "keyword"},
      "priority":    {"type": "keyword"},
      "created_at":  {"type": "date", "format": "epoch_millis"}
    }
  }
}`

// documentMapping 文档元数据索引：按文件名检索。
const documentMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "org_id":       {"type": "keyword"},
      "file_name":    {"type": "text"},
      "content_type": {"type": "keyword"},
      "uploader_id":  {"type": "keyword"},
      "created_at":   {"type": "date", "format": "epoch_millis"}
    }
  }
}`

// InitES 初始化 Elasticsearch 客户端并确保索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client

	if err := createIndexIfNotExists(esCfg.TicketIndex, ticketMapping); err != nil {
		return err
	}
	return createIndexIfNotExists(esCfg.DocumentIndex, documentMapping)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按给定映射创建。
func createIndexIfNotExists(indexName, mapping string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	createRes, err := ESClient.Indices.Create(indexName, ESClient.Indices.Create.WithBody(strings.NewReader(mapping)))
	if err != nil {
		return fmt.Errorf("创建索引失败: %w", err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("创建索引 '%s' 失败: %s", indexName, createRes.String())
	}
	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexDocument 将任意文档写入（或覆盖）指定索引。
func IndexDocument(ctx context.Context, indexName, docID string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal es document: %w", err)
	}
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es index request failed: %s", res.String())
	}
	return nil
}

// DeleteDocument 从指定索引删除文档；文档不存在视为成功（幂等）。
func DeleteDocument(ctx context.Context, indexName, docID string) error {
	req := esapi.DeleteRequest{Index: indexName, DocumentID: docID}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("es delete request failed: %s", res.String())
	}
	return nil
}

// searchHit 是通用检索结果的最小包装。
type searchHit struct {
	Source json.RawMessage `json:"_source"`
}

// Search 在指定索引上执行 match 查询，结果限定在 orgID 范围内。
// 每条命中的 _source 原样交给 collect 回调反序列化。
func Search(ctx context.Context, indexName, orgID, field, query string, size int, collect func(raw json.RawMessage) error) error {
	if size <= 0 {
		size = 20
	}
	esQuery := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{"match": map[string]interface{}{field: query}},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"org_id": orgID}},
				},
			},
		},
	}
	body, err := json.Marshal(esQuery)
	if err != nil {
		return fmt.Errorf("failed to marshal es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to execute es search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es search request failed: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []searchHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode es search response: %w", err)
	}
	for _, hit := range parsed.Hits.Hits {
		if err := collect(hit.Source); err != nil {
			return err
		}
	}
	return nil
}
