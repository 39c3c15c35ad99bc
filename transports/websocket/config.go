package websocket

import "time"

// Config holds the configuration for the extension session server.
type Config struct {
	// Listen port
	Port int `json:"port"`

	// Session endpoint path
	Path string `json:"path"`

	// Origins allowed to open a session. Empty allows any origin, which
	// extension pages need since their origin is chrome-extension://<id>.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	ReadBufferSize  int   `json:"read_buffer_size"`
	WriteBufferSize int   `json:"write_buffer_size"`
	MaxMessageSize  int64 `json:"max_message_size"`

	// Keepalive
	PingInterval time.Duration `json:"ping_interval"`
	PongWait     time.Duration `json:"pong_wait"`
	WriteWait    time.Duration `json:"write_wait"`

	// Per-session JSONL logs are written here when set.
	LogDir string `json:"log_dir,omitempty"`

	EnableTLS   bool   `json:"enable_tls"`
	TLSCertFile string `json:"tls_cert_file,omitempty"`
	TLSKeyFile  string `json:"tls_key_file,omitempty"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:            8765,
		Path:            "/session",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageSize:  1 << 20,
		PingInterval:    20 * time.Second,
		PongWait:        45 * time.Second,
		WriteWait:       5 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	out := *c
	if out.Port == 0 {
		out.Port = d.Port
	}
	if out.Path == "" {
		out.Path = d.Path
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.PingInterval <= 0 {
		out.PingInterval = d.PingInterval
	}
	if out.PongWait <= out.PingInterval {
		out.PongWait = out.PingInterval * 9 / 4
	}
	if out.WriteWait <= 0 {
		out.WriteWait = d.WriteWait
	}
	return &out
}
