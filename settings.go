package rasteriser

import (
	"os"
	"time"

	"github.com/wgdzlh/rasteriser/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL         = "https://www.nismod.ac.uk/api/data"
	DefaultResolveTimeout = 2 * time.Minute

	EnvAPIUsername = "NISMOD_DB_USERNAME"
	EnvAPIPassword = "NISMOD_DB_PASSWORD"
	EnvAPIURL      = "NISMOD_DB_API_URL"
)

type APISettings struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Settings is the process configuration. It is loaded once and passed
// explicitly to the components that need it.
type Settings struct {
	API            APISettings   `yaml:"api"`
	DataDir        string        `yaml:"data_dir"` // 相对输出路径的基准目录
	TmpDir         string        `yaml:"tmp_dir"`  // 中间文件目录，为空时使用系统临时目录
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
	BoundaryYear   int           `yaml:"boundary_year"`
	Workers        int           `yaml:"workers"`
	Log            log.Config    `yaml:"log"`
}

func DefaultSettings() *Settings {
	return &Settings{
		API:            APISettings{URL: DefaultAPIURL},
		DataDir:        "data",
		ResolveTimeout: DefaultResolveTimeout,
		BoundaryYear:   BoundaryYear,
		Log:            log.Config{Level: "info", Encoding: log.EncodingConsole},
	}
}

// LoadSettings reads a YAML file over the defaults; path may be empty.
// API credentials in the environment override the file.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(b, s); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		s.API.URL = v
	}
	if v := os.Getenv(EnvAPIUsername); v != "" {
		s.API.Username = v
	}
	if v := os.Getenv(EnvAPIPassword); v != "" {
		s.API.Password = v
	}
	if s.ResolveTimeout <= 0 {
		s.ResolveTimeout = DefaultResolveTimeout
	}
	if s.BoundaryYear == 0 {
		s.BoundaryYear = BoundaryYear
	}
	return s, nil
}
