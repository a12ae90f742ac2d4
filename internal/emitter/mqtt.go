package emitter

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rzbill/replay/internal/bag"
	"github.com/rzbill/replay/pkg/log"
)

// Envelope is the wire form of a replayed message on MQTT.
type Envelope struct {
	Topic       string `msgpack:"topic"`
	TimestampNs int64  `msgpack:"ts_ns"`
	Payload     []byte `msgpack:"payload"`
}

// EncodeEnvelope packs msg for transport.
func EncodeEnvelope(msg *bag.Message) ([]byte, error) {
	return msgpack.Marshal(Envelope{
		Topic:       msg.Topic,
		TimestampNs: msg.Timestamp,
		Payload:     msg.Payload,
	})
}

// DecodeEnvelope unpacks a transported message.
func DecodeEnvelope(b []byte) (*bag.Message, error) {
	var env Envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	return &bag.Message{Topic: env.Topic, Timestamp: env.TimestampNs, Payload: env.Payload}, nil
}

// Options configures an MQTT sink.
type Options struct {
	// Broker is a host:port address.
	Broker string
	// ClientID identifies this client to the broker.
	ClientID string
	// TopicPrefix is prepended to every message topic, with a "/"
	// separator. Defaults to "replay".
	TopicPrefix string
	// QOS is the MQTT quality of service for publishes.
	QOS byte
	// ConnectTimeout bounds the initial connect. Defaults to 5s.
	ConnectTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TopicPrefix == "" {
		o.TopicPrefix = "replay"
	}
	if o.ClientID == "" {
		o.ClientID = "replay-player"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	return o
}

// MQTTSink forwards delivered messages to an MQTT broker as msgpack
// envelopes. It satisfies the player's sink contract: Publish reports
// false while the broker is unreachable, and the auto-reconnecting
// client picks delivery back up once the connection returns.
type MQTTSink struct {
	opts   Options
	client mqtt.Client
	logger log.Logger

	published atomic.Uint64
	errors    atomic.Uint64
}

// NewMQTTSink connects to the broker and returns a ready sink.
func NewMQTTSink(opts Options, logger log.Logger) (*MQTTSink, error) {
	opts = opts.withDefaults()
	if opts.Broker == "" {
		return nil, fmt.Errorf("emitter: broker address required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	s := &MQTTSink{opts: opts, logger: logger.With(log.Component("emitter"))}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s", opts.Broker))
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		s.logger.Info("mqtt connected", log.Str("broker", opts.Broker))
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", log.Str("broker", opts.Broker), log.Err(err))
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

// Publish forwards one message. It never blocks on broker
// acknowledgement; publish failures are counted and logged.
func (s *MQTTSink) Publish(msg *bag.Message) bool {
	if !s.client.IsConnected() {
		return false
	}
	b, err := EncodeEnvelope(msg)
	if err != nil {
		s.errors.Add(1)
		s.logger.Error("encode failed", log.Str("topic", msg.Topic), log.Err(err))
		return false
	}
	tok := s.client.Publish(s.opts.TopicPrefix+"/"+msg.Topic, s.opts.QOS, false, b)
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			s.errors.Add(1)
			s.logger.Warn("publish failed", log.Str("topic", msg.Topic), log.Err(err))
		}
	}()
	s.published.Add(1)
	return true
}

// Published returns how many messages were handed to the client.
func (s *MQTTSink) Published() uint64 { return s.published.Load() }

// Errors returns how many encodes or publishes failed.
func (s *MQTTSink) Errors() uint64 { return s.errors.Load() }

// Close disconnects from the broker after letting in-flight publishes
// settle.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
	s.logger.Info("mqtt disconnected",
		log.Uint64("published", s.published.Load()),
		log.Uint64("errors", s.errors.Load()))
}
