package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

var (
	Common CommonConf
	Email  EmailConf

	configPath string
)

// CommonConf is the data required for all services
type CommonConf struct {
	Debug bool `toml:"debug"`

	DBDSN string `toml:"db_dsn"`
	// HostPrefix is the public address of the diocese website, used in checkout back URLs and receipts.
	HostPrefix string `toml:"host_prefix"`

	DefaultLang string `toml:"default_language"`
	LogDir      string `toml:"log_dir"`
}

type EmailConf struct {
	Enabled bool `toml:"enabled"`

	Host     string `toml:"host"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

type configStruct struct {
	Common CommonConf `toml:"common"`
	Email  EmailConf  `toml:"email"`
}

func defaults() configStruct {
	return configStruct{
		Common: CommonConf{
			DBDSN:       "sslmode=disable host=/var/run/postgresql user=catedral dbname=catedral",
			HostPrefix:  "http://localhost:8080",
			DefaultLang: "pt-BR",
		},
	}
}

func SetConfigPath(path string) {
	configPath = path
}

// Load reads the bootstrap config. A .env file next to the working directory is applied first;
// CATEDRAL_DB_DSN wins over the file.
func Load(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.WarnContext(ctx, "Could not load .env file", slog.Any("err", err))
	}

	conf := defaults()
	if configPath == "" {
		return errors.New("invalid config path")
	}
	md, err := toml.DecodeFile(configPath, &conf)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if len(md.Undecoded()) > 0 {
		slog.InfoContext(ctx, "There were a few undecoded keys", slog.Any("keys", md.Undecoded()))
	}

	if dsn := os.Getenv("CATEDRAL_DB_DSN"); dsn != "" {
		conf.Common.DBDSN = dsn
	}

	Common = conf.Common
	Email = conf.Email
	return nil
}

// Save writes the current config back, mostly to format it and fill in defaults.
func Save() error {
	if configPath == "" {
		return errors.New("invalid config path")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(file).Encode(configStruct{Common: Common, Email: Email}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
