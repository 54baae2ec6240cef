package types

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// CoreConf 描述了 HTTP META 核心控制 API 的连接参数。
type CoreConf struct {
	Protocol         string `ini:"protocol"`
	Host             string `ini:"host"`
	Port             int    `ini:"port"`
	Authorization    string `ini:"authorization"`
	StartDelayMs     int    `ini:"start_delay_ms"`      // 核心启动后的预热时间
	PerNodeTimeoutMs int    `ini:"per_node_timeout_ms"` // 每个节点的耗时预算, 用于计算核心的自动关闭时间
}

// ProbeConf 描述了探测目标与探测行为。
type ProbeConf struct {
	Targets            []string `ini:"targets" delim:","`
	CustomURLs         []string `ini:"custom_urls" delim:","`
	Policy             string   `ini:"policy"` // "all" or "any"
	Concurrency        int      `ini:"concurrency"`
	TimeoutMs          int      `ini:"timeout_ms"`
	Retries            int      `ini:"retries"`
	RetryDelayMs       int      `ini:"retry_delay_ms"`
	Method             string   `ini:"method"`
	Prefix             string   `ini:"prefix"`
	ProxyScheme        string   `ini:"proxy_scheme"` // "http" or "socks5"
	InsecureSkipVerify bool     `ini:"insecure_skip_verify"`
	MaxBodyBytes       int64    `ini:"max_body_bytes"`
	Strict             bool     `ini:"strict"` // stop at the first failed target of a node
}

// CacheConf 控制结果缓存。
type CacheConf struct {
	Enabled            bool   `ini:"enabled"`
	DisableFailedCache bool   `ini:"disable_failed_cache"`
	Path               string `ini:"path"`      // empty means in-memory only
	TTLHours           int    `ini:"ttl_hours"` // owned by the store, not the engine
}

// WebConf 包含 HTTP 服务的配置
type WebConf struct {
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
}

// Config 是 prober 的统一配置结构体
type Config struct {
	LogConf   `ini:"log"`
	CoreConf  `ini:"core"`
	ProbeConf `ini:"probe"`
	CacheConf `ini:"cache"`
	WebConf   `ini:"web"`
}

// DefaultConfig returns the defaults used for any key missing from the ini file.
func DefaultConfig() *Config {
	return &Config{
		LogConf: LogConf{Level: "info"},
		CoreConf: CoreConf{
			Protocol:         "http",
			Host:             "127.0.0.1",
			Port:             9876,
			StartDelayMs:     3000,
			PerNodeTimeoutMs: 10000,
		},
		ProbeConf: ProbeConf{
			Targets:      []string{"gpt", "claude", "gemini"},
			Policy:       "all",
			Concurrency:  10,
			TimeoutMs:    5000,
			Retries:      1,
			RetryDelayMs: 1000,
			Method:       "get",
			Prefix:       "[AI] ",
			ProxyScheme:  "http",
			MaxBodyBytes: 1 << 20,
		},
		CacheConf: CacheConf{TTLHours: 48},
	}
}
