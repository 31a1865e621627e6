package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/scanplan/core/events"
	"github.com/kilianp07/scanplan/core/logger"
	"github.com/kilianp07/scanplan/core/model"
	coremqtt "github.com/kilianp07/scanplan/core/mqtt"
	"github.com/kilianp07/scanplan/pkg/export"
)

// DefaultTopicPrefix is the root of every topic written by the publisher.
const DefaultTopicPrefix = "scanplan"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TimeoutMS   int             `json:"timeout_ms"`
	// Timezone renders schedule timestamps; empty means UTC.
	Timezone  string      `json:"timezone"`
	TLSConfig *tls.Config `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "scanplan"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

// Validate checks the configuration when a broker is set.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if !strings.Contains(c.Broker, "://") {
		return fmt.Errorf("mqtt.broker must include a scheme, got %q", c.Broker)
	}
	if strings.ContainsAny(c.TopicPrefix, "+#") {
		return fmt.Errorf("mqtt.topic_prefix must not contain wildcards")
	}
	for k, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2", k)
		}
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("mqtt.auth_method %q not supported", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PahoPublisher implements core mqtt.Publisher using Eclipse Paho.
type PahoPublisher struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	loc        *time.Location
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoPublisher connects to the MQTT broker.
func NewPahoPublisher(cfg Config, log logger.Logger) (*PahoPublisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("mqtt timezone: %w", err)
		}
	}

	p := &PahoPublisher{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		loc:        loc,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		timeout:    time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); !token.WaitTimeout(p.timeout) {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, coremqtt.ErrPublishTimeout)
	} else if token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
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
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// SchedulePayload is the retained message describing a facility schedule.
type SchedulePayload struct {
	RunID       string          `json:"run_id"`
	Facility    string          `json:"facility"`
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []export.Record `json:"entries"`
	Added       []string        `json:"added"`
}

// AgendaPayload is the retained message of a single machine.
type AgendaPayload struct {
	RunID   string          `json:"run_id"`
	Machine string          `json:"machine"`
	Entries []export.Record `json:"entries"`
}

// RunPayload reports the outcome of one run.
type RunPayload struct {
	RunID     string `json:"run_id"`
	Facility  string `json:"facility"`
	Status    string `json:"status"`
	Scheduled int    `json:"scheduled"`
	Deferred  int    `json:"deferred"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// ScheduleTopic is the retained topic holding the schedule of a facility.
func (p *PahoPublisher) ScheduleTopic(facility string) string {
	return p.topic(facility, "schedule")
}

// MachineTopic is the retained topic holding the agenda of one machine.
func (p *PahoPublisher) MachineTopic(facility, machine string) string {
	return p.topic(facility, "machines", machine)
}

// RunTopic receives one message per run.
func (p *PahoPublisher) RunTopic(facility string) string {
	return p.topic(facility, "runs")
}

func (p *PahoPublisher) topic(facility string, parts ...string) string {
	if facility == "" {
		facility = "default"
	}
	return strings.Join(append([]string{p.prefix, facility}, parts...), "/")
}

func (p *PahoPublisher) records(entries []model.ScheduleEntry) []export.Record {
	out := make([]export.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, export.ToRecord(e, p.loc))
	}
	return out
}

// PublishSchedule publishes the full schedule and one agenda per machine,
// all retained.
func (p *PahoPublisher) PublishSchedule(ctx context.Context, ev events.ScheduleEvent) error {
	payload := SchedulePayload{
		RunID:       ev.RunID,
		Facility:    ev.Facility,
		GeneratedAt: ev.Time,
		Entries:     p.records(ev.Schedule),
		Added:       make([]string, 0, len(ev.Added)),
	}
	for _, e := range ev.Added {
		payload.Added = append(payload.Added, e.ScanID)
	}
	if err := p.publishJSON(ctx, p.ScheduleTopic(ev.Facility), p.qosFor("schedule"), true, payload); err != nil {
		return err
	}
	for _, a := range export.ByMachine(ev.Schedule) {
		agenda := AgendaPayload{RunID: ev.RunID, Machine: a.Machine, Entries: p.records(a.Entries)}
		if err := p.publishJSON(ctx, p.MachineTopic(ev.Facility, a.Machine), p.qosFor("schedule"), true, agenda); err != nil {
			return err
		}
	}
	return nil
}

// PublishRun publishes a run outcome, not retained.
func (p *PahoPublisher) PublishRun(ctx context.Context, ev events.RunEvent) error {
	payload := RunPayload{
		RunID:     ev.RunID,
		Facility:  ev.Facility,
		Status:    ev.Status,
		Scheduled: ev.Scheduled,
		Deferred:  ev.Deferred,
		ElapsedMS: ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	return p.publishJSON(ctx, p.RunTopic(ev.Facility), p.qosFor("run"), false, payload)
}

func (p *PahoPublisher) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 1
}

func (p *PahoPublisher) publishJSON(ctx context.Context, topic string, qos byte, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		if !token.WaitTimeout(p.timeout) {
			publishErr = coremqtt.ErrPublishTimeout
		} else {
			publishErr = token.Error()
		}
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoPublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

var _ coremqtt.Publisher = (*PahoPublisher)(nil)
