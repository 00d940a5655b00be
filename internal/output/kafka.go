package output

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"vanrank/internal/models"
	"vanrank/internal/session"
)

// KafkaPublisher pushes generation and visit events to Kafka so downstream
// consumers (BI, mobile sync) see batches and redistributions as they land.
type KafkaPublisher struct {
	producer   sarama.SyncProducer
	visitTopic string
	batchTopic string
}

func NewKafkaPublisher(cfg models.KafkaConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // Must be true for SyncProducer
	saramaConfig.Net.DialTimeout = 30 * time.Second
	saramaConfig.Net.ReadTimeout = 30 * time.Second
	saramaConfig.Net.WriteTimeout = 30 * time.Second

	if cfg.SessionTimeoutMs > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(cfg.SessionTimeoutMs) * time.Millisecond
	} else {
		saramaConfig.Consumer.Group.Session.Timeout = 45 * time.Second
	}

	brokerList := strings.Split(cfg.BrokerList, ",")
	producer, err := sarama.NewSyncProducer(brokerList, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}

	log.Printf("Sarama producer created successfully with brokers %v", brokerList)
	return &KafkaPublisher{
		producer:   producer,
		visitTopic: cfg.VisitTopic,
		batchTopic: cfg.BatchTopic,
	}, nil
}

// PublishGenerated announces a freshly stored batch.
func (k *KafkaPublisher) PublishGenerated(route string, date time.Time, recordCount int) error {
	event := map[string]interface{}{
		"routeCode":   route,
		"trxDate":     date.Format(models.DateLayout),
		"recordCount": recordCount,
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	}
	return k.send(k.batchTopic, route, event)
}

// PublishVisit announces a processed visit with its redistribution result.
func (k *KafkaPublisher) PublishVisit(sessionID string, result *session.VisitResult) error {
	event := map[string]interface{}{
		"sessionId": sessionID,
		"visit":     result,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return k.send(k.visitTopic, sessionID, event)
}

func (k *KafkaPublisher) send(topic, key string, event interface{}) error {
	if k.producer == nil {
		return fmt.Errorf("Sarama producer is not initialized")
	}

	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(msg),
	})
	if err != nil {
		log.Printf("Failed to send message to topic %s: %v", topic, err)
		return err
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
