package correlation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Miss is an order line that could not be correlated.
type Miss struct {
	MessageID    string    `json:"messageId,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	CaseSystem   string    `json:"caseSystem"`
	CaseRef      string    `json:"caseRef"`
	DecisionDate string    `json:"decisionDate"`
	Candidates   int       `json:"candidates"`
	Exact        int       `json:"exact"`
	Pending      int       `json:"pending"`
	RecordedAt   time.Time `json:"@timestamp"`
}

// ElasticsearchSink indexes misses for operators. Documents are keyed by
// message id so a redelivered message overwrites its earlier record.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) RecordMiss(ctx context.Context, miss Miss) error {
	body, err := json.Marshal(miss)
	if err != nil {
		return err
	}

	index := s.client.Index
	options := []func(*esapi.IndexRequest){
		index.WithContext(ctx),
	}
	if miss.MessageID != "" {
		options = append(options, index.WithDocumentID(miss.MessageID))
	}

	res, err := index(s.index, bytes.NewReader(body), options...)
	if err != nil {
		return fmt.Errorf("index correlation miss: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index correlation miss: %s: %s", res.Status(), msg)
	}
	return nil
}
