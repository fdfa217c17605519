// Package config loads .bibliographer.toml and wires the global logger.
// The config file is found by walking up from the working directory, and
// relative paths inside it resolve against the file's own directory, so a
// run from any subdirectory of a site checkout sees the same tree.
package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// configNames are checked in order in each directory on the walk up.
var configNames = []string{"bibliographer.toml", ".bibliographer.toml"}

// Config holds the resolved application configuration. Path fields are
// absolute by the time Load returns. Secrets follow the value-or-command
// pattern: the *_cmd variant names a shell command whose output is the
// value, used only when the direct value is unset.
type Config struct {
	Verbose bool `mapstructure:"verbose"`

	DataRoot     string `mapstructure:"bibliographer_data_root"`
	BookSlugRoot string `mapstructure:"book_slug_root"`

	GoogleBooksKey     string `mapstructure:"google_books_key"`
	GoogleBooksKeyCmd  string `mapstructure:"google_books_key_cmd"`
	AudibleToken       string `mapstructure:"audible_token"`
	AudibleTokenCmd    string `mapstructure:"audible_token_cmd"`
	LibrofmUsername    string `mapstructure:"librofm_username"`
	LibrofmPassword    string `mapstructure:"librofm_password"`
	LibrofmPasswordCmd string `mapstructure:"librofm_password_cmd"`
	RaindropToken      string `mapstructure:"raindrop_token"`
	RaindropTokenCmd   string `mapstructure:"raindrop_token_cmd"`
}

// Load reads the config file at path, or the nearest bibliographer.toml /
// .bibliographer.toml walking up from the working directory, then applies
// BIBLIOGRAPHER_ environment overrides on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetEnvPrefix("BIBLIOGRAPHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so environment overrides reach Unmarshal.
	v.SetDefault("verbose", false)
	v.SetDefault("bibliographer_data_root", "./bibliographer/data")
	v.SetDefault("book_slug_root", "./bibliographer/books")
	v.SetDefault("google_books_key", "")
	v.SetDefault("google_books_key_cmd", "")
	v.SetDefault("audible_token", "")
	v.SetDefault("audible_token_cmd", "")
	v.SetDefault("librofm_username", "")
	v.SetDefault("librofm_password", "")
	v.SetDefault("librofm_password_cmd", "")
	v.SetDefault("raindrop_token", "")
	v.SetDefault("raindrop_token_cmd", "")

	base, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "config: working directory")
	}
	if path == "" {
		path = findInParents(base)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "config: read %s", path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, eris.Wrapf(err, "config: absolute path for %s", path)
		}
		base = filepath.Dir(abs)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	cfg.DataRoot = resolveAgainst(base, cfg.DataRoot)
	cfg.BookSlugRoot = resolveAgainst(base, cfg.BookSlugRoot)
	return &cfg, nil
}

// findInParents walks from dir to the filesystem root looking for a
// config file, returning "" when none exists.
func findInParents(dir string) string {
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func resolveAgainst(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Validate checks that the credentials op needs are configured. It does
// not run secret commands; presence of either form is enough.
func (c *Config) Validate(op string) error {
	var missing []string
	switch op {
	case "audible":
		if c.AudibleToken == "" && c.AudibleTokenCmd == "" {
			missing = append(missing, "audible_token")
		}
	case "librofm":
		if c.LibrofmUsername == "" {
			missing = append(missing, "librofm_username")
		}
		if c.LibrofmPassword == "" && c.LibrofmPasswordCmd == "" {
			missing = append(missing, "librofm_password")
		}
	case "raindrop":
		if c.RaindropToken == "" && c.RaindropTokenCmd == "" {
			missing = append(missing, "raindrop_token")
		}
	default:
		return eris.Errorf("config: unknown operation %q", op)
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GoogleBooksAPIKey resolves the Google Books API key.
func (c *Config) GoogleBooksAPIKey() (string, error) {
	return secret(c.GoogleBooksKey, c.GoogleBooksKeyCmd)
}

// AudibleBearerToken resolves the Audible API bearer token.
func (c *Config) AudibleBearerToken() (string, error) {
	return secret(c.AudibleToken, c.AudibleTokenCmd)
}

// LibrofmLoginPassword resolves the Libro.fm account password.
func (c *Config) LibrofmLoginPassword() (string, error) {
	return secret(c.LibrofmPassword, c.LibrofmPasswordCmd)
}

// RaindropBearerToken resolves the Raindrop API token.
func (c *Config) RaindropBearerToken() (string, error) {
	return secret(c.RaindropToken, c.RaindropTokenCmd)
}

// secret returns value when set, otherwise the trimmed output of cmd run
// through the shell (so pipelines like `pass show x | head -1` work).
func secret(value, cmd string) (string, error) {
	if value != "" {
		return value, nil
	}
	if cmd == "" {
		return "", nil
	}
	out, err := exec.Command("sh", "-c", cmd).Output()
	if err != nil {
		return "", eris.Wrapf(err, "config: secret command %q", cmd)
	}
	return strings.TrimSpace(string(out)), nil
}

// InitLogger installs the global zap logger: console encoding, info level,
// debug when verbose.
func InitLogger(verbose bool) error {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.DisableStacktrace = true
	if !verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// exampleConfig mirrors Config with TOML tags for rendering the starter
// file; secret keys are emitted commented out.
type exampleConfig struct {
	Verbose            bool   `toml:"verbose"`
	DataRoot           string `toml:"bibliographer_data_root"`
	BookSlugRoot       string `toml:"book_slug_root"`
	GoogleBooksKey     string `toml:"google_books_key,commented"`
	GoogleBooksKeyCmd  string `toml:"google_books_key_cmd,commented"`
	AudibleToken       string `toml:"audible_token,commented"`
	AudibleTokenCmd    string `toml:"audible_token_cmd,commented"`
	LibrofmUsername    string `toml:"librofm_username,commented"`
	LibrofmPassword    string `toml:"librofm_password,commented"`
	LibrofmPasswordCmd string `toml:"librofm_password_cmd,commented"`
	RaindropToken      string `toml:"raindrop_token,commented"`
	RaindropTokenCmd   string `toml:"raindrop_token_cmd,commented"`
}

// Example renders a starter config file with every supported key.
func Example() (string, error) {
	data, err := toml.Marshal(exampleConfig{
		DataRoot:     "./bibliographer/data",
		BookSlugRoot: "./bibliographer/books",
	})
	if err != nil {
		return "", eris.Wrap(err, "config: render example")
	}
	return string(data), nil
}
