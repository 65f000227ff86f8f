// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mq wraps the paho client behind the two operations the bridge needs,
// isolating the rest of the code from the token/timeout ceremony of the
// underlying library.
type mq struct {
	conn   mqtt.Client
	logger *log.Logger
}

// newMQ connects to a broker and returns a new mq. The connection is
// persistent: paho re-establishes it after a disconnect. Subscriptions
// are issued once, by Subscribe; nothing here issues them again after a
// reconnect.
func newMQ(conf MqttConfig, logger *log.Logger) (*mq, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port))
	opts.ClientID = conf.ClientID
	if opts.ClientID == "" {
		opts.ClientID = "mqttbridge"
	}
	opts.Username = conf.User
	opts.Password = conf.Password
	opts.AutoReconnect = true
	opts.ResumeSubs = true

	conn := mqtt.NewClient(opts)
	if token := conn.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		if err := token.Error(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("timed out connecting to %s:%d", conf.Host, conf.Port)
	}
	logger.Info("mqtt connected", "host", conf.Host, "port", conf.Port)
	return &mq{conn: conn, logger: logger}, nil
}

// Publish JSON-encodes payload and publishes it at QoS 1. Delivery is
// fire-and-forget; a frame the broker never sees is no worse than a frame
// the radio never heard.
func (m *mq) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("cannot encode mqtt payload", "topic", topic, "err", err)
		return
	}
	m.conn.Publish(topic, 1, false, data)
}

// Subscribe registers fn for every RawTxPacket published to topic.
// Messages that don't decode are logged and dropped.
func (m *mq) Subscribe(topic string, fn func(*RawTxPacket)) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		pkt := &RawTxPacket{}
		if err := json.Unmarshal(msg.Payload(), pkt); err != nil {
			m.logger.Warn("cannot decode tx packet", "topic", msg.Topic(), "err", err)
			return
		}
		fn(pkt)
	}
	if token := m.conn.Subscribe(topic, 1, handler); !token.WaitTimeout(2*time.Second) || token.Error() != nil {
		if err := token.Error(); err != nil {
			return err
		}
		return fmt.Errorf("timed out subscribing to %s", topic)
	}
	return nil
}
