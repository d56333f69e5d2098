package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Listener  ListenerConfig  `mapstructure:"listener"`
	Host      HostConfig      `mapstructure:"host"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	System    SystemConfig    `mapstructure:"system"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	RetentionDays   int           `mapstructure:"retention_days"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Driver        string        `mapstructure:"driver"` // tarm 或 bugst
	Port          string        `mapstructure:"port"`
	KnownSerial   string        `mapstructure:"known_serial"` // 按USB序列号查找串口
	BaudRate      int           `mapstructure:"baud_rate"`
	DataBits      int           `mapstructure:"data_bits"`
	StopBits      int           `mapstructure:"stop_bits"`
	Parity        string        `mapstructure:"parity"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	RetryTimes    int           `mapstructure:"retry_times"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	AutoReconnect bool          `mapstructure:"auto_reconnect"`
}

// ListenerConfig 轮询打印配置
type ListenerConfig struct {
	Marker       string        `mapstructure:"marker"`
	MarkerLine   string        `mapstructure:"marker_line"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ReadSize     int           `mapstructure:"read_size"`
	StrictASCII  bool          `mapstructure:"strict_ascii"`
	HistorySize  int           `mapstructure:"history_size"`
}

// HostConfig 键盘宿主桥接配置
type HostConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClipboardDir string `mapstructure:"clipboard_dir"`
	MaxLineSize  int    `mapstructure:"max_line_size"`
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	ClientID       string        `mapstructure:"client_id"`
	QoS            byte          `mapstructure:"qos"`
	Retained       bool          `mapstructure:"retained"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	Topics         MQTTTopics    `mapstructure:"topics"`
}

// MQTTTopics MQTT主题配置
type MQTTTopics struct {
	Lines   string `mapstructure:"lines"`
	Markers string `mapstructure:"markers"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT           JWTConfig `mapstructure:"jwt"`
	AdminPassword string    `mapstructure:"admin_password"` // argon2id编码后的哈希
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 加载一份独立的配置（不影响全局实例）
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	// 设置环境变量前缀
	vp.SetEnvPrefix("MARCO")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 如果配置文件不存在，使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	return vp, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/marco.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.retention_days", 30)

	// WebSocket默认配置
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.path", "/ws/lines")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")

	// 串口默认配置
	v.SetDefault("serial.driver", "tarm")
	v.SetDefault("serial.port", "COM9")
	v.SetDefault("serial.known_serial", "")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "10ms")
	v.SetDefault("serial.retry_times", 3)
	v.SetDefault("serial.retry_interval", "100ms")
	v.SetDefault("serial.auto_reconnect", false)

	// 轮询默认配置
	v.SetDefault("listener.marker", "Found I2C")
	v.SetDefault("listener.marker_line", "it's in there")
	v.SetDefault("listener.poll_interval", "10ms")
	v.SetDefault("listener.read_size", 4096)
	v.SetDefault("listener.strict_ascii", true)
	v.SetDefault("listener.history_size", 256)

	// 宿主桥接默认配置
	v.SetDefault("host.enabled", false)
	v.SetDefault("host.clipboard_dir", "./data/clipboards")
	v.SetDefault("host.max_line_size", 100)

	// MQTT默认配置
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.url", "mqtt://localhost:1883/marco/")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)
	v.SetDefault("mqtt.connect_timeout", "5s")
	v.SetDefault("mqtt.publish_timeout", "2s")
	v.SetDefault("mqtt.topics.lines", "lines")
	v.SetDefault("mqtt.topics.markers", "markers")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "file")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "marco.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.expire_hours", 24)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Serial.Driver {
	case "tarm", "bugst":
	default:
		return fmt.Errorf("不支持的串口驱动: %s", c.Serial.Driver)
	}
	if c.Serial.Port == "" && c.Serial.KnownSerial == "" {
		return fmt.Errorf("串口设备和USB序列号不能同时为空")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("无效的波特率: %d", c.Serial.BaudRate)
	}
	if c.Listener.PollInterval <= 0 {
		return fmt.Errorf("无效的轮询间隔: %v", c.Listener.PollInterval)
	}
	if c.Listener.ReadSize <= 0 {
		return fmt.Errorf("无效的读取缓冲大小: %d", c.Listener.ReadSize)
	}
	if c.Listener.Marker == "" {
		return fmt.Errorf("标记字符串不能为空")
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置校验失败，忽略本次变更: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	v.WatchConfig()
}

// ConfigFile 当前使用的配置文件
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
