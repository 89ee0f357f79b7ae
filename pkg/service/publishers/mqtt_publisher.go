// PCBoven Core
// Copyright (c) 2026 The PCBoven Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PCBoven Core.
//
// PCBoven Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PCBoven Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PCBoven Core.  If not, see <http://www.gnu.org/licenses/>.

// Package publishers pushes oven state changes to external systems.
package publishers

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/service/broker"
	"github.com/rs/zerolog/log"
)

const (
	StateSuffix  = "/state"
	StatusSuffix = "/status"
	StatusOnline = "online"
	// StatusOffline is also registered as the last will, so the broker
	// publishes it if the service dies.
	StatusOffline  = "offline"
	publishTimeout = 5 * time.Second
)

type StateSource interface {
	Snapshot() (models.OvenState, models.Connection)
}

type Subscriber interface {
	Subscribe() *broker.Subscription
	Unsubscribe(id int)
}

// StatePayload is the retained message published on every change.
type StatePayload struct {
	Time       time.Time         `json:"time"`
	Connection models.Connection `json:"connection"`
	State      models.OvenState  `json:"state"`
	Connected  bool              `json:"connected"`
}

// MQTTPublisher publishes a state snapshot to an MQTT broker on every hub
// signal.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	src       StateSource
	hub       Subscriber
	stopCh    chan struct{}
	broker    string
	topic     string
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewMQTTPublisher creates a publisher for broker, a URL such as
// tcp://host:1883, publishing under topic.
func NewMQTTPublisher(brokerURL, topic string, src StateSource, hub Subscriber) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    brokerURL,
		topic:     topic,
		src:       src,
		hub:       hub,
		newClient: mqtt.NewClient,
		stopCh:    make(chan struct{}),
	}
}

func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID("pcboven-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(p.topic+StatusSuffix, StatusOffline, 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", p.broker).Msg("mqtt publisher: connected")
		// republish on reconnect so retained values survive broker restarts
		p.publish(c, p.topic+StatusSuffix, 1, StatusOnline)
		p.publishState(c)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}
	return opts
}

// Start connects to the broker and begins publishing.
func (p *MQTTPublisher) Start() error {
	if p.client == nil {
		p.client = p.newClient(p.clientOptions())
	}

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Info().Str("broker", p.broker).Str("topic", p.topic).Msg("mqtt publisher: started")

	sub := p.hub.Subscribe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.hub.Unsubscribe(sub.ID())
		p.publishChanges(sub)
	}()
	return nil
}

// Stop publishes the offline status and disconnects.
func (p *MQTTPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		p.publish(p.client, p.topic+StatusSuffix, 1, StatusOffline)
		log.Debug().Msg("mqtt publisher: disconnecting")
		p.client.Disconnect(250)
	}
}

func (p *MQTTPublisher) publishChanges(sub *broker.Subscription) {
	for {
		select {
		case <-p.stopCh:
			return
		case _, ok := <-sub.C():
			if !ok {
				log.Debug().Msg("mqtt publisher: hub closed")
				return
			}
			p.publishState(p.client)
		}
	}
}

func (p *MQTTPublisher) payload() ([]byte, error) {
	state, conn := p.src.Snapshot()
	data, err := json.Marshal(StatePayload{
		Time:       time.Now(),
		Connection: conn,
		State:      state,
		Connected:  conn.Active(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

func (p *MQTTPublisher) publishState(c mqtt.Client) {
	data, err := p.payload()
	if err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to build payload")
		return
	}
	p.publish(c, p.topic+StateSuffix, 0, data)
}

func (*MQTTPublisher) publish(c mqtt.Client, topic string, qos byte, payload any) {
	token := c.Publish(topic, qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("mqtt publisher: publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("mqtt publisher: failed to publish")
	}
}
