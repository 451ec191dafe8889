package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	DepositResult  string `mapstructure:"deposit_result"`
	WithdrawResult string `mapstructure:"withdraw_result"`
}

type BusinessConfig struct {
	WithdrawExpireMinutes   int   `mapstructure:"withdraw_expire_minutes"`   // 提现申请超时时间（分钟）
	WithdrawRetentionHours  int   `mapstructure:"withdraw_retention_hours"`  // 超时且已退款申请的保留时长（小时）
	ReferralCommission      int64 `mapstructure:"referral_commission"`       // 首充邀请佣金（单位：分）
	ReferralMinDeposit      int64 `mapstructure:"referral_min_deposit"`      // 触发佣金的最低充值金额（单位：分）
	MaxRetryCount           int   `mapstructure:"max_retry_count"`           // 发件箱消息最大重试次数
	BalanceRetryCount       int   `mapstructure:"balance_retry_count"`       // 乐观锁冲突重试次数
}

// AdminConfig 管理后台凭证
// 只从环境变量注入，源码和配置文件中不允许出现默认值
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GatewayConfig PIX 支付网关凭证，密钥同样只从环境变量注入
type GatewayConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	// 敏感配置只认环境变量
	viper.MustBindEnv("admin.username", "COINBANK_ADMIN_USER")
	viper.MustBindEnv("admin.password", "COINBANK_ADMIN_PASSWORD")
	viper.MustBindEnv("gateway.client_id", "COINBANK_GATEWAY_CLIENT_ID")
	viper.MustBindEnv("gateway.client_secret", "COINBANK_GATEWAY_CLIENT_SECRET")

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if config.Admin.Username == "" || config.Admin.Password == "" {
		log.Fatal("管理员凭证未配置，请设置 COINBANK_ADMIN_USER / COINBANK_ADMIN_PASSWORD")
	}

	GlobalConfig = config
	return config
}
