package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID    = "event_id"
	HeaderEventType  = "event_type"
	HeaderBusinessID = "business_id"
)

// EventMeta is the metadata every agenda event carries in its Kafka headers.
type EventMeta struct {
	EventID    string
	EventType  string
	BusinessID string
}

// ExtractEventMeta reads the agenda headers, falling back to the message key
// and topic for producers that predate the headers.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:    HeaderValue(msg.Headers, HeaderEventID),
		EventType:  HeaderValue(msg.Headers, HeaderEventType),
		BusinessID: HeaderValue(msg.Headers, HeaderBusinessID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// Headers renders meta as Kafka headers, skipping empty values.
func (m EventMeta) Headers() []kafka.Header {
	headers := make([]kafka.Header, 0, 3)
	for _, kv := range [][2]string{
		{HeaderEventID, m.EventID},
		{HeaderEventType, m.EventType},
		{HeaderBusinessID, m.BusinessID},
	} {
		if kv[1] == "" {
			continue
		}
		headers = append(headers, kafka.Header{Key: kv[0], Value: []byte(kv[1])})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
