package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"acorn/addr"
	"acorn/asset"
	"acorn/log"

	"github.com/fsnotify/fsnotify"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

type config struct {
	// MySQL configs.
	User     string
	Password string
	Hostname string
	Port     string
	Database string

	// Label sets log output prefix.
	Label string

	RPCs []string `mapstructure:"rpc_url"`

	// Workers sets the number of goroutines used to download and classify records.
	// Recommend value: 4.
	Workers int

	// RelayURL is the base url of the signing relay.
	RelayURL string `mapstructure:"relay_url"`

	// Watch lists the addresses the sync task follows.
	Watch []string

	// Assets overrides the built-in asset table.
	Assets []asset.Asset

	HistoryLimit   int           `mapstructure:"history_limit"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MetricsAddr is where prometheus metrics and pprof are served, empty to disable.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// AliyunMail is an optional config which will be used in mail alert package.
	AliyunMail AliyunMailConfig `mapstructure:"aliyun_mail"`
}

// AliyunMailConfig is the struct for aliyun mail configs.
type AliyunMailConfig struct {
	AccountName     string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
	Receiver        []string
}

const (
	defaultHistoryLimit   = 50
	defaultSyncInterval   = 30 * time.Second
	defaultRequestTimeout = 20 * time.Second
)

var (
	cfg      config
	registry *asset.Registry
	watch    []addr.Address
	cfgLock  sync.RWMutex
)

// Load reads config/config.{json,yaml} and watches it for changes.
func Load(display bool) {
	viper.SetConfigName("config")
	viper.AddConfigPath("./config")
	// Incase test cases require loading configs.
	viper.AddConfigPath("../config")

	if err := reload(display); err != nil {
		panic(err)
	}

	log.UpdatePrefix(GetLabel())

	viper.WatchConfig()
	viper.OnConfigChange(onConfigChange)
}

// LoadFile reads the given config file without watching it.
func LoadFile(path string, display bool) error {
	viper.SetConfigFile(path)
	return reload(display)
}

func reload(display bool) error {
	if err := viper.ReadInConfig(); err != nil {
		return err
	}

	next, err := load(display)
	if err != nil {
		return err
	}

	reg, addrs, err := check(next)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	cfg, registry, watch = *next, reg, addrs
	cfgLock.Unlock()

	return nil
}

func load(display bool) (*config, error) {
	next := config{
		HistoryLimit:   defaultHistoryLimit,
		SyncInterval:   defaultSyncInterval,
		RequestTimeout: defaultRequestTimeout,
	}

	if err := viper.Unmarshal(&next); err != nil {
		return nil, err
	}

	update(&next)

	if display {
		shown := next
		shown.Password = "******"
		shown.AliyunMail.AccessKeySecret = "******"
		configContent, _ := jsoniter.MarshalIndent(shown, "", "    ")
		log.Println(string(configContent))
	}

	return &next, nil
}

func update(c *config) {
	for i := 0; i < len(c.RPCs); i++ {
		rpc := c.RPCs[i]
		if !strings.HasPrefix(rpc, "http") {
			c.RPCs[i] = "http://" + rpc
		}
	}

	if c.RelayURL != "" && !strings.HasPrefix(c.RelayURL, "http") {
		c.RelayURL = "http://" + c.RelayURL
	}

	if len(c.Assets) == 0 {
		c.Assets = asset.Defaults()
	}
}

// GetDbConnStr returns mysql connection string.
func GetDbConnStr() string {
	cfgLock.RLock()
	defer cfgLock.RUnlock()

	str := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s",
		cfg.User,
		cfg.Password,
		cfg.Hostname,
		cfg.Port,
		cfg.Database,
	)

	params := []string{
		"charset=utf8mb4",
		"parseTime=True",
		"loc=Local",
	}

	return fmt.Sprintf("%s?%s", str, strings.Join(params, "&"))
}

// GetLabel returns custome label as console output prefix.
func GetLabel() string {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.Label
}

// GetRPCs returns all rpc urls from config.
func GetRPCs() []string {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return append([]string(nil), cfg.RPCs...)
}

// GetGoroutines returns the number of working goroutines.
func GetGoroutines() int {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.Workers
}

// GetRelayURL returns the signing relay base url.
func GetRelayURL() string {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.RelayURL
}

// GetWatch returns the watched addresses.
func GetWatch() []addr.Address {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return append([]addr.Address(nil), watch...)
}

// GetAssets returns the asset registry.
func GetAssets() *asset.Registry {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return registry
}

// GetHistoryLimit returns how many records one sync fetches per address.
func GetHistoryLimit() int {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.HistoryLimit
}

// GetSyncInterval returns the pause between two syncs of an address.
func GetSyncInterval() time.Duration {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.SyncInterval
}

// GetRequestTimeout returns the ledger request timeout.
func GetRequestTimeout() time.Duration {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.RequestTimeout
}

// GetMetricsAddr returns the metrics listen address.
func GetMetricsAddr() string {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.MetricsAddr
}

// LoadAliyunMailConfig performs a basic check on aliyun mail config.
func LoadAliyunMailConfig() error {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return checkAliyunMail(cfg.AliyunMail)
}

// GetAliyunMailConfig returns aliyun mail configs.
func GetAliyunMailConfig() AliyunMailConfig {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg.AliyunMail
}

func check(c *config) (*asset.Registry, []addr.Address, error) {
	if err := checkWorker(c); err != nil {
		return nil, nil, err
	}

	if err := checkRPCs(c); err != nil {
		return nil, nil, err
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > 1000 {
		return nil, nil, errors.New("value of 'history_limit' must be between 1 and 1000")
	}

	if c.SyncInterval <= 0 {
		return nil, nil, errors.New("value of 'sync_interval' must be positive")
	}

	reg, err := asset.NewRegistry(c.Assets)
	if err != nil {
		return nil, nil, fmt.Errorf("assets: %w", err)
	}

	addrs, err := checkWatch(c)
	if err != nil {
		return nil, nil, err
	}

	return reg, addrs, nil
}

func checkWorker(c *config) error {
	if c.Workers < 1 {
		return errors.New("value of 'workers' must greater than or equal to 1")
	}
	return nil
}

func checkRPCs(c *config) error {
	if len(c.RPCs) < 1 {
		return errors.New("at least 1 rpc server url must be set")
	}

	for _, rpc := range c.RPCs {
		u, err := url.Parse(rpc)
		if err != nil {
			return err
		}

		if u.Port() == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return err
		}
	}

	return nil
}

func checkWatch(c *config) ([]addr.Address, error) {
	addrs := make([]addr.Address, 0, len(c.Watch))
	for _, w := range c.Watch {
		a, err := addr.Decode(w)
		if err != nil {
			return nil, fmt.Errorf("watch address %q: %w", w, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func checkAliyunMail(m AliyunMailConfig) error {
	if m.AccountName == "" {
		return errors.New("aliyun mail account name cannot be empty")
	}

	if m.Region == "" {
		return errors.New("aliyun mail region cannot be empty")
	}

	if m.AccessKeyID == "" {
		return errors.New("aliyun mail accessKeyID cannot be empty")
	}

	if m.AccessKeySecret == "" {
		return errors.New("aliyun mail accessKeySecret cannot be empty")
	}

	if len(m.Receiver) == 0 {
		return errors.New("aliyun mail receiver cannot be empty")
	}

	return nil
}

func onConfigChange(e fsnotify.Event) {
	log.Printf("Config file change detected: %s", e.Name)

	const stdErr = "Failed to read new configuration, current configuration stay unchanged"

	if err := reload(true); err != nil {
		log.Printf("%s: %s", stdErr, err)
		return
	}

	log.UpdatePrefix(GetLabel())
}
