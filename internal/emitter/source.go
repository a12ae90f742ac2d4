package emitter

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rzbill/replay/internal/bus"
	"github.com/rzbill/replay/pkg/log"
)

// MQTTSource subscribes to a broker's envelope topics and republishes
// each decoded message onto the in-process bus, where a recorder can
// pick it up.
type MQTTSource struct {
	opts   Options
	client mqtt.Client
	b      *bus.Bus
	logger log.Logger

	received atomic.Uint64
	bad      atomic.Uint64
}

// NewMQTTSource connects and subscribes to every topic under the
// configured prefix.
func NewMQTTSource(opts Options, b *bus.Bus, logger log.Logger) (*MQTTSource, error) {
	opts = opts.withDefaults()
	if opts.Broker == "" {
		return nil, fmt.Errorf("emitter: broker address required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	s := &MQTTSource{opts: opts, b: b, logger: logger.With(log.Component("emitter"))}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s", opts.Broker))
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", log.Str("broker", opts.Broker), log.Err(err))
	}
	// Resubscribe on every (re)connect so a broker restart does not
	// silently end the capture.
	co.OnConnect = func(c mqtt.Client) {
		filter := opts.TopicPrefix + "/#"
		tok := c.Subscribe(filter, opts.QOS, s.onMessage)
		go func() {
			tok.Wait()
			if err := tok.Error(); err != nil {
				s.logger.Error("subscribe failed", log.Str("filter", filter), log.Err(err))
				return
			}
			s.logger.Info("mqtt subscribed", log.Str("filter", filter))
		}()
	}

	s.client = mqtt.NewClient(co)
	tok := s.client.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("emitter: connect to %s timed out", opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("emitter: connect to %s: %w", opts.Broker, err)
	}
	return s, nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg, err := DecodeEnvelope(m.Payload())
	if err != nil {
		s.bad.Add(1)
		s.logger.Warn("dropping malformed envelope", log.Str("mqtt_topic", m.Topic()), log.Err(err))
		return
	}
	if msg.Topic == "" {
		// Raw publishes without an envelope topic fall back to the MQTT
		// topic with the prefix stripped.
		msg.Topic = strings.TrimPrefix(m.Topic(), s.opts.TopicPrefix+"/")
	}
	s.received.Add(1)
	s.b.Publish(msg)
}

// Received returns how many envelopes were decoded and forwarded.
func (s *MQTTSource) Received() uint64 { return s.received.Load() }

// Close unsubscribes and disconnects.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
	s.logger.Info("mqtt capture stopped",
		log.Uint64("received", s.received.Load()),
		log.Uint64("malformed", s.bad.Load()))
}
