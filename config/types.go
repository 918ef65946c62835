package config

type WisdomWalkConfModel struct {
	LogLevel   string   `mapstructure:"log_level"`
	Mode       string   `mapstructure:"mode"`
	AdminUsers []string `mapstructure:"admin_users"`
	Server     Server   `mapstructure:"server"`
	DB         DB       `mapstructure:"db"`
	Auth       Auth     `mapstructure:"auth"`
	Chat       Chat     `mapstructure:"chat"`
	Firebase   Firebase `mapstructure:"firebase"`
	Email      Email    `mapstructure:"email"`
	Redis      Redis    `mapstructure:"redis"`
	Gateway    Gateway  `mapstructure:"gateway"`
}

type Server struct {
	Port           int      `mapstructure:"port"`
	APIPrefix      string   `mapstructure:"api_prefix"`
	APIVersion     string   `mapstructure:"api_version"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DB struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Keyspace string `mapstructure:"keyspace"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Auth struct {
	PublicKeyPath  string `mapstructure:"public_key_path"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	Issuer         string `mapstructure:"issuer"`
	TokenExpiry    string `mapstructure:"token_expiry"`
}

type Chat struct {
	EditWindow       string    `mapstructure:"edit_window"`
	MaxContentLength int       `mapstructure:"max_content_length"`
	PageSize         int       `mapstructure:"page_size"`
	Group            GroupChat `mapstructure:"group"`
}

type GroupChat struct {
	ProtectCreator   bool `mapstructure:"protect_creator"`
	InviteLinkLength int  `mapstructure:"invite_link_length"`
}

type Firebase struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Email struct {
	Enabled      bool     `mapstructure:"enabled"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	Region       string   `mapstructure:"region"`
	From         string   `mapstructure:"from"`
	SenderName   string   `mapstructure:"sender_name"`
	NotifyTypes  []string `mapstructure:"notify_types"`
	RedirectLink string   `mapstructure:"redirect_link"`
}

type Redis struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type Gateway struct {
	PingInterval string `mapstructure:"ping_interval"`
	ReadBuffer   int    `mapstructure:"read_buffer"`
	WriteBuffer  int    `mapstructure:"write_buffer"`
}
