package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/viper"

	"wisdomwalk/pkg/consts"
)

const (
	configFilePath = "/etc/wisdomwalk/config.yaml"
	configPathEnv  = "WISDOMWALK_CONFIG"
)

var (
	wisdomWalkConf *WisdomWalkConfModel
	PathPrefix     string
)

func LoadConfig() (*WisdomWalkConfModel, error) {
	filePath := configFilePath
	if fromEnv := os.Getenv(configPathEnv); fromEnv != "" {
		filePath = fromEnv
	}

	if err := loadViperConfig(filePath); err != nil {
		return nil, err
	}

	return wisdomWalkConf, nil
}

func loadViperConfig(filePath string) error {
	viper.SetConfigFile(filePath)
	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading viper config: %w", err)
	}

	setEnvConf()
	setDefault()

	err = viper.Unmarshal(&wisdomWalkConf)
	if err != nil {
		return fmt.Errorf("error loading viper config to struct: %w", err)
	}

	if wisdomWalkConf.Mode != consts.ModeProduction {
		val, err := json.MarshalIndent(*wisdomWalkConf, "", "  ")
		if err == nil {
			fmt.Println(string(val))
		}
	}

	loadAdminUsers()

	// /api/v1
	PathPrefix, err = url.JoinPath("/", wisdomWalkConf.Server.APIPrefix, wisdomWalkConf.Server.APIVersion)
	if err != nil {
		return err
	}

	return nil
}

func setEnvConf() {
	viper.BindEnv("db.username", "WISDOMWALK_DB_USERNAME")
	viper.BindEnv("db.password", "WISDOMWALK_DB_PASSWORD")
	viper.BindEnv("email.username", "WISDOMWALK_EMAIL_USERNAME")
	viper.BindEnv("email.password", "WISDOMWALK_EMAIL_PASSWORD")
	viper.BindEnv("redis.password", "WISDOMWALK_REDIS_PASSWORD")
}

func setDefault() {
	viper.SetDefault("mode", consts.ModeStage)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.api_prefix", "api")
	viper.SetDefault("server.api_version", "v1")
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("db.driver", consts.DriverCassandra)
	viper.SetDefault("db.keyspace", consts.AppName)
	viper.SetDefault("auth.issuer", consts.AppName)
	viper.SetDefault("auth.token_expiry", "720h")
	viper.SetDefault("chat.edit_window", "15m")
	viper.SetDefault("chat.max_content_length", 2000)
	viper.SetDefault("chat.page_size", 50)
	viper.SetDefault("chat.group.protect_creator", false)
	viper.SetDefault("chat.group.invite_link_length", 16)
	viper.SetDefault("redis.channel", "wisdomwalk:rooms")
	viper.SetDefault("gateway.ping_interval", "30s")
	viper.SetDefault("gateway.read_buffer", 1024)
	viper.SetDefault("gateway.write_buffer", 1024)
}

// GetConfig returns env config
func GetConfig() *WisdomWalkConfModel {
	return wisdomWalkConf
}
