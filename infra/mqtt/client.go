package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/viklund/heatopt/core/mqtt"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix roots all topics, typically "heatopt/{installation}".
	TopicPrefix string `json:"topic_prefix"`
	// AckTopic receives setpoint acknowledgments from thermostats.
	AckTopic string `json:"ack_topic"`
	// ReadingTopic is the wildcard subscription for zone temperature
	// readings, e.g. "heatopt/home/zone/+/temperature".
	ReadingTopic string `json:"reading_topic"`
	// OutdoorTopic carries the shared outdoor temperature reading.
	OutdoorTopic string          `json:"outdoor_topic"`
	UseTLS       bool            `json:"use_tls"`
	ClientCert   string          `json:"client_cert"`
	ClientKey    string          `json:"client_key"`
	CABundle     string          `json:"ca_bundle"`
	QoS          map[string]byte `json:"qos"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	MaxRetries   int             `json:"max_retries"`
	BackoffMS    int             `json:"backoff_ms"`
	TLSConfig    *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// SetpointCommand is the wire format of a heating command.
type SetpointCommand struct {
	CommandID     string  `json:"command_id"`
	ZoneID        string  `json:"zone_id"`
	Level         float64 `json:"level"`
	EffectiveFrom int64   `json:"effective_from"`
	ValidUntil    int64   `json:"valid_until"`
}

// reading is the wire format of a temperature sample.
type reading struct {
	ZoneID    string  `json:"zone_id"`
	Temp      float64 `json:"temperature"`
	Timestamp int64   `json:"timestamp"`
}

// PahoClient implements the core mqtt.Client interface using Eclipse Paho.
type PahoClient struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu       sync.Mutex
	ackChans map[string]chan struct{}

	onReading func(model.SensorReading)
	onOutdoor func(float64, time.Time)
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the broker and subscribes to the ack, reading
// and outdoor topics. The reading and outdoor callbacks may be nil when the
// caller only publishes.
func NewPahoClient(cfg Config, onReading func(model.SensorReading), onOutdoor func(float64, time.Time)) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:       cfg,
		logger:    log,
		ackChans:  make(map[string]chan struct{}),
		onReading: onReading,
		onOutdoor: onOutdoor,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.subscribe(c, cfg.AckTopic, "ack", pc.onAck)
		if cfg.ReadingTopic != "" && onReading != nil {
			pc.subscribe(c, cfg.ReadingTopic, "reading", pc.onReadingMsg)
		}
		if cfg.OutdoorTopic != "" && onOutdoor != nil {
			pc.subscribe(c, cfg.OutdoorTopic, "reading", pc.onOutdoorMsg)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

func (p *PahoClient) subscribe(c paho.Client, topic, qosKey string, h paho.MessageHandler) {
	if topic == "" {
		return
	}
	qos := byte(0)
	if q, ok := p.cfg.QoS[qosKey]; ok {
		qos = q
	}
	if token := c.Subscribe(topic, qos, h); token.Wait() && token.Error() != nil {
		p.logger.Errorf("subscribe %s error: %v", topic, token.Error())
	}
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	if ch, ok := p.ackChans[m.CommandID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Infof("received ack %s", m.CommandID)
	}
	p.mu.Unlock()
}

func (p *PahoClient) onReadingMsg(_ paho.Client, msg paho.Message) {
	var r reading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		p.logger.Errorf("failed to decode reading: %v", err)
		return
	}
	p.onReading(model.SensorReading{
		ZoneID:    r.ZoneID,
		Temp:      r.Temp,
		Timestamp: time.UnixMilli(r.Timestamp),
	})
}

func (p *PahoClient) onOutdoorMsg(_ paho.Client, msg paho.Message) {
	var r reading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		p.logger.Errorf("failed to decode outdoor reading: %v", err)
		return
	}
	p.onOutdoor(r.Temp, time.UnixMilli(r.Timestamp))
}

// SendSetpoint publishes a setpoint command to the zone topic and returns
// the command identifier used for acknowledgment tracking.
func (p *PahoClient) SendSetpoint(zoneID string, level model.HeatingLevel, effectiveFrom, validUntil time.Time) (string, error) {
	cmdID := uuid.NewString()
	cmd := SetpointCommand{
		CommandID:     cmdID,
		ZoneID:        zoneID,
		Level:         float64(level),
		EffectiveFrom: effectiveFrom.UnixMilli(),
		ValidUntil:    validUntil.UnixMilli(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}

	topic := fmt.Sprintf("%s/zone/%s/setpoint", p.cfg.TopicPrefix, zoneID)
	qos := byte(0)
	if q, ok := p.cfg.QoS["setpoint"]; ok {
		qos = q
	}
	// Register before publishing so an ack racing the publish is not lost.
	p.mu.Lock()
	p.ackChans[cmdID] = make(chan struct{}, 1)
	p.mu.Unlock()
	retries := p.cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	var publishErr error
	for attempt := 0; attempt <= retries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("sent setpoint %s to %s", cmdID, topic)
			break
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	if publishErr != nil {
		p.mu.Lock()
		delete(p.ackChans, cmdID)
		p.mu.Unlock()
		return "", publishErr
	}
	return cmdID, nil
}

// WaitForAck blocks until an ACK for the given command ID is received or timeout.
func (p *PahoClient) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown command")
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
		return true, nil
	case <-timer.C:
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
		return false, fmt.Errorf("%w", coremqtt.ErrAckTimeout)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
