package events

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// KafkaAuth настройки подключения к Kafka (SASL/PLAIN + TLS, как у Aiven)
type KafkaAuth struct {
	Username string
	Password string
	CACert   string
}

func (a KafkaAuth) mechanism() sasl.Mechanism {
	if a.Username == "" || a.Password == "" {
		return nil
	}
	return plain.Mechanism{Username: a.Username, Password: a.Password}
}

// tlsConfig TLS включается при SASL или заданном CA сертификате
func (a KafkaAuth) tlsConfig(log *zap.Logger) *tls.Config {
	if a.mechanism() == nil && a.CACert == "" {
		return nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if a.CACert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(a.CACert)) {
			cfg.RootCAs = pool
			log.Info("🔒 Kafka: TLS с CA сертификатом включен")
		} else {
			log.Warn("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	} else {
		log.Info("🔒 Kafka: TLS включен (системные сертификаты)")
	}
	return cfg
}

// CreateKafkaDialer создает dialer для служебных подключений (создание топика)
func CreateKafkaDialer(auth KafkaAuth, log *zap.Logger) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		TLS:       auth.tlsConfig(log),
	}
	if m := auth.mechanism(); m != nil {
		dialer.SASLMechanism = m
		log.Info("🔐 Kafka: SASL/PLAIN аутентификация включена", zap.String("username", auth.Username))
	}
	return dialer
}

// CreateKafkaTransport транспорт для kafka.Writer с той же аутентификацией
func CreateKafkaTransport(auth KafkaAuth, log *zap.Logger) *kafka.Transport {
	return &kafka.Transport{
		DialTimeout: 10 * time.Second,
		SASL:        auth.mechanism(),
		TLS:         auth.tlsConfig(log),
	}
}

// ParseKafkaBrokers парсит строку с брокерами (может быть через запятую)
func ParseKafkaBrokers(brokers string) []string {
	if brokers == "" {
		return []string{}
	}
	var result []string
	for _, broker := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// EnsureTopic создает топик через контроллер кластера, если его еще нет
func EnsureTopic(ctx context.Context, dialer *kafka.Dialer, broker, topic string, partitions int) error {
	conn, err := dialer.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	ctrlConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return nil
	}
	return err
}
