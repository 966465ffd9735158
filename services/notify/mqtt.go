package notifysvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/notify"
)

var ErrNotConnected = errors.New("mqtt not connected")

type (
	// publisher is the part of mqtt.Client the sender uses.
	publisher interface {
		Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
		IsConnectionOpen() bool
	}

	// MQTTSender hands notifications to a messaging gateway (SMS, WhatsApp...) listening on an MQTT topic.
	MQTTSender struct {
		client   publisher
		topic    string
		deviceID string
		logger   core.Logger

		mu        sync.Mutex
		published uint64
		failed    uint64
	}

	mqttPayload struct {
		Address  string    `json:"address"`
		Text     string    `json:"text"`
		DeviceID string    `json:"deviceId,omitempty"`
		SentAt   time.Time `json:"sentAt"`
	}
)

var _ notify.Sender = (*MQTTSender)(nil)

// NewMQTTSender connects to the broker. The client reconnects on its own after a connection loss.
func NewMQTTSender(conf *core.Config, logger core.Logger) (*MQTTSender, error) {
	s := &MQTTSender{topic: conf.Notify.MQTTTopic, deviceID: conf.Kiosk.DeviceID, logger: logger}

	clientID := "hazira-" + conf.Kiosk.DeviceID
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", conf.Notify.MQTTBroker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info(fmt.Sprintf("mqtt connection established: %s", conf.Notify.MQTTBroker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn(fmt.Sprintf("mqtt connection lost, will auto-reconnect: %v", err), err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "mqtt connection failed")
	}
	s.client = client
	return s, nil
}

func (s *MQTTSender) Send(ctx context.Context, address, text string) error {
	if !s.client.IsConnectionOpen() {
		s.count(false)
		return ErrNotConnected
	}

	payload, err := json.Marshal(mqttPayload{Address: address, Text: text, DeviceID: s.deviceID, SentAt: time.Now().UTC()})
	if err != nil {
		s.count(false)
		return errors.Wrap(err, "encoding payload")
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		s.count(false)
		return errors.Wrap(ctx.Err(), "publish timeout")
	}
	if err = token.Error(); err != nil {
		s.count(false)
		return errors.Wrap(err, "publish failed")
	}
	s.count(true)
	return nil
}

func (s *MQTTSender) count(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.published++
	} else {
		s.failed++
	}
}

// Stats returns the number of published and failed notifications.
func (s *MQTTSender) Stats() (published, failed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.failed
}

// Close disconnects from the broker, giving in-flight messages up to 250ms.
func (s *MQTTSender) Close() {
	if c, ok := s.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
}
