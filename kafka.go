package domainsplit

import (
	"context"

	"github.com/segmentio/kafka-go"
)

const (
	EventTopic = "domainsplit_event"
	SaleTopic  = "domainsplit_sale"
)

type KWriter struct {
	w *kafka.Writer
}

func NewKWriter(topic string, uri string) (*KWriter, error) {
	w := &kafka.Writer{
		Addr:     kafka.TCP(uri),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KWriter{
		w: w,
	}, nil
}

func (kw *KWriter) Write(key string, body []byte) error {
	err := kw.w.WriteMessages(
		context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: body,
		},
	)
	return err
}

func (kw *KWriter) Close() {
	kw.w.Close()
}

func NewKWriters(uri string) (map[string]msgWriter, error) {
	eventWriter, err := NewKWriter(EventTopic, uri)
	if err != nil {
		return nil, err
	}
	saleWriter, err := NewKWriter(SaleTopic, uri)
	if err != nil {
		return nil, err
	}
	return map[string]msgWriter{
		EventTopic: eventWriter,
		SaleTopic:  saleWriter,
	}, nil
}
