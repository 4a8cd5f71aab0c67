package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Agent struct {
		DataDir  string `mapstructure:"data_dir"`
		LogLevel string `mapstructure:"log_level"`
		ProbeURL string `mapstructure:"probe_url"`
	} `mapstructure:"agent"`

	Remote struct {
		Endpoint          string `mapstructure:"endpoint"`
		BundleID          string `mapstructure:"bundle_id"`
		StoreID           string `mapstructure:"store_id"`
		FirebaseProjectID string `mapstructure:"firebase_project_id"`
		OS                string `mapstructure:"os"`
	} `mapstructure:"remote"`

	Attribution struct {
		DevKey      string `mapstructure:"dev_key"`
		GCDEndpoint string `mapstructure:"gcd_endpoint"`
	} `mapstructure:"attribution"`

	Stub struct {
		Addr      string `mapstructure:"addr"`
		URL       string `mapstructure:"url"`
		ExpiresIn int    `mapstructure:"expires_in"`
	} `mapstructure:"stub"`
}

func Load() Config {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

func validate(c *Config) {
	if c.Agent.DataDir == "" { c.Agent.DataDir = "data" }
	if c.Agent.ProbeURL == "" { c.Agent.ProbeURL = "https://connectivitycheck.gstatic.com/generate_204" }
	if c.Remote.OS == "" { c.Remote.OS = "Android" }
	if c.Attribution.GCDEndpoint == "" { c.Attribution.GCDEndpoint = "https://api2.appsflyer.com/gcd" }
	if c.Stub.Addr == "" { c.Stub.Addr = ":8080" }
	if c.Stub.ExpiresIn <= 0 { c.Stub.ExpiresIn = 86400 }
}
