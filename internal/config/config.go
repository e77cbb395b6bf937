package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
)

type Config struct {
	Env    string `yaml:"env" env-default:"local"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port   string `yaml:"port" env-default:"9200"`
		ApiKey string `yaml:"key" env-default:""`
	} `yaml:"listen"`
	Store struct {
		Backend string `yaml:"backend" env-default:"file"` // "file" | "mongo"
		Path    string `yaml:"path" env-default:"./data"`
		Retries uint64 `yaml:"retries" env-default:"5"`
	} `yaml:"store"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env-default:""`
		Database string `yaml:"database" env-default:"wadesk"`
	} `yaml:"mongo"`
	Bot struct {
		AttemptLimit        int      `yaml:"attempt_limit" env-default:"3"`
		ConfidenceThreshold float64  `yaml:"confidence_threshold" env-default:"0.45"`
		EscalateKeywords    []string `yaml:"escalate_keywords" env-default:"atendente,human,agente"`
		KnowledgeBasePath   string   `yaml:"knowledge_base_path" env-default:"./kb.yml"`
	} `yaml:"bot"`
	Session struct {
		InitTimeoutSec    int    `yaml:"init_timeout_sec" env-default:"90"`
		HeartbeatSec      int    `yaml:"heartbeat_sec" env-default:"30"`
		ReconnectDelaySec int    `yaml:"reconnect_delay_sec" env-default:"15"`
		PurgeRetries      uint64 `yaml:"purge_retries" env-default:"5"`
		CredentialsDir    string `yaml:"credentials_dir" env-default:"./credentials"`
	} `yaml:"session"`
	WhatsApp struct {
		AccessToken string `yaml:"access_token" env-default:""`
		VerifyToken string `yaml:"verify_token" env-default:""`
		AppSecret   string `yaml:"app_secret" env-default:""`
	} `yaml:"whatsapp"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env-default:""`
		AdminId int64  `yaml:"admin_id" env-default:"0"`
		BotName string `yaml:"bot_name" env-default:"WaDeskBot"`
	} `yaml:"telegram"`
	OpenAI struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env-default:""`
		Model   string `yaml:"model" env-default:"gpt-4o-mini"`
	} `yaml:"openai"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
