package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

// ElasticConfig holds configuration options for the Elasticsearch sink
type ElasticConfig struct {
	URL         string
	Username    string
	Password    string
	IndexPrefix string
}

// DefaultElasticConfig returns a default configuration for the sink
func DefaultElasticConfig() *ElasticConfig {
	return &ElasticConfig{
		URL:         "http://localhost:9200",
		IndexPrefix: "crates",
	}
}

// ElasticSink indexes domain events into Elasticsearch so leaderboards and
// economy analytics can be computed offline without touching the live store.
type ElasticSink struct {
	client      *elasticsearch.Client
	indexPrefix string
}

// event envelope indexed into ES
type eventDocument struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewElasticSink creates a sink backed by an Elasticsearch cluster.
func NewElasticSink(config *ElasticConfig) (*ElasticSink, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
	}

	// Add authentication if provided
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	prefix := config.IndexPrefix
	if prefix == "" {
		prefix = "crates"
	}

	return &ElasticSink{client: client, indexPrefix: prefix}, nil
}

// Publish indexes the event into the events index.
func (s *ElasticSink) Publish(ctx context.Context, event Event) error {
	doc := eventDocument{
		Event:     event.Name(),
		Payload:   event,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error marshaling event document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.indexPrefix + "_events",
		DocumentID: uuid.New().String(),
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("error indexing event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing event: %s", res.String())
	}

	return nil
}
