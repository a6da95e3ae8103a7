package model

import "time"

// Config is the complete veracast configuration
type Config struct {
	Caption      CaptionConfig      `yaml:"caption" mapstructure:"caption"`
	Graph        GraphConfig        `yaml:"graph" mapstructure:"graph"`
	Layout       LayoutConfig       `yaml:"layout" mapstructure:"layout"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Validation   ValidationConfig   `yaml:"validation" mapstructure:"validation"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	RateLimiting RateLimitConfig    `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Authority    AuthorityConfig    `yaml:"authority" mapstructure:"authority"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// CaptionConfig tunes the caption reconciler
type CaptionConfig struct {
	DedupCap      int     `yaml:"dedup_cap" mapstructure:"dedup_cap"`           // Seen-set size cap
	EvictFraction float64 `yaml:"evict_fraction" mapstructure:"evict_fraction"` // Share evicted when over cap
}

// GraphConfig tunes the claim graph synthesizer
type GraphConfig struct {
	TargetNodes       int     `yaml:"target_nodes" mapstructure:"target_nodes"`
	ExpandIncrement   int     `yaml:"expand_increment" mapstructure:"expand_increment"`
	MinRelevance      float64 `yaml:"min_relevance" mapstructure:"min_relevance"`
	RelaxedRelevance  float64 `yaml:"relaxed_relevance" mapstructure:"relaxed_relevance"`
	CacheKeyLength    int     `yaml:"cache_key_length" mapstructure:"cache_key_length"`
	Seed              int64   `yaml:"seed" mapstructure:"seed"` // 0 = time-seeded
	MaxClusters       int     `yaml:"max_clusters" mapstructure:"max_clusters"`
	BridgeEdges       int     `yaml:"bridge_edges" mapstructure:"bridge_edges"`
	ExtraRelatedEdges int     `yaml:"extra_related_edges" mapstructure:"extra_related_edges"`
}

// LayoutConfig tunes the force simulation
type LayoutConfig struct {
	Width      float64       `yaml:"width" mapstructure:"width"`
	Height     float64       `yaml:"height" mapstructure:"height"`
	MinRadius  float64       `yaml:"min_radius" mapstructure:"min_radius"`
	MaxRadius  float64       `yaml:"max_radius" mapstructure:"max_radius"`
	MaxTicks   int           `yaml:"max_ticks" mapstructure:"max_ticks"`
	AlphaMin   float64       `yaml:"alpha_min" mapstructure:"alpha_min"`
	Charge     float64       `yaml:"charge" mapstructure:"charge"`
	CollideGap float64       `yaml:"collide_gap" mapstructure:"collide_gap"`
	Frame      time.Duration `yaml:"frame" mapstructure:"frame"` // Pause between live ticks; 0 runs unpaced
}

// CacheConfig configures the graph cache layers
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskDir   string        `yaml:"disk_dir" mapstructure:"disk_dir"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisAddr string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"` // Optional shared layer
}

// LLMConfig configures the LLM collaborator
type LLMConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"-" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// SearchConfig configures the social search collaborator
type SearchConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	BearerToken string        `yaml:"-" mapstructure:"bearer_token"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes    int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// StoreConfig configures the session store
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // SQLite file or ":memory:"
}

// VerificationConfig configures utterance verification
type VerificationConfig struct {
	MinWords     int           `yaml:"min_words" mapstructure:"min_words"` // <= this many words is skipped
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	SummaryEvery int           `yaml:"summary_every" mapstructure:"summary_every"` // 0 disables running summaries
	DisplaySlots int           `yaml:"display_slots" mapstructure:"display_slots"`
}

// ValidationConfig configures source-link vetting
type ValidationConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxWorkers    int           `yaml:"max_workers" mapstructure:"max_workers"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// ServerConfig configures the rendering-surface server
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// RateLimitConfig limits calls to external collaborators
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig sizes worker pools
type ConcurrencyConfig struct {
	VerifyWorkers int `yaml:"verify_workers" mapstructure:"verify_workers"`
	GraphWorkers  int `yaml:"graph_workers" mapstructure:"graph_workers"`
}

// AuthorityConfig drives source authority classification
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"`
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty" mapstructure:"path_patterns"`
}

// PathPattern assigns a tier to URLs whose path matches Pattern
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"` // Regular expression
	Tier    string `yaml:"tier" mapstructure:"tier"`       // primary, secondary or tertiary
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Caption: CaptionConfig{
			DedupCap:      1000,
			EvictFraction: 0.2,
		},
		Graph: GraphConfig{
			TargetNodes:       30,
			ExpandIncrement:   20,
			MinRelevance:      15,
			RelaxedRelevance:  5,
			CacheKeyLength:    100,
			MaxClusters:       5,
			BridgeEdges:       3,
			ExtraRelatedEdges: 2,
		},
		Layout: LayoutConfig{
			Width:      960,
			Height:     640,
			MinRadius:  6,
			MaxRadius:  28,
			MaxTicks:   400,
			AlphaMin:   0.001,
			Charge:     -120,
			CollideGap: 3,
			Frame:      16 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskDir:   ".veracast/cache",
			DiskTTL:   24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 1500,
		},
		Search: SearchConfig{
			Timeout:   15 * time.Second,
			UserAgent: "veracast/0.1 (+https://github.com/ppiankov/veracast)",
			MaxBytes:  2_000_000,
		},
		Store: StoreConfig{
			Path: ".veracast/veracast.db",
		},
		Verification: VerificationConfig{
			MinWords:     10,
			PollInterval: 3 * time.Second,
			SummaryEvery: 10,
			DisplaySlots: 200,
		},
		Validation: ValidationConfig{
			Timeout:       5 * time.Second,
			MaxWorkers:    8,
			UserAgent:     "veracast/0.1 (+https://github.com/ppiankov/veracast)",
			RespectRobots: true,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Concurrency: ConcurrencyConfig{
			VerifyWorkers: 4,
			GraphWorkers:  2,
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"gov", "gov.uk", "europa.eu", "who.int", "un.org", "census.gov", "bls.gov",
				"nih.gov", "cdc.gov", "oecd.org", "worldbank.org", "imf.org",
			},
			SecondaryDomains: []string{
				"apnews.com", "reuters.com", "bbc.co.uk", "bbc.com", "politifact.com",
				"factcheck.org", "snopes.com", "fullfact.org", "nytimes.com", "wikipedia.org",
			},
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
