// Package profile resolves runtime configuration from the environment.
package profile

import (
	"net/url"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the resolved configuration for one localchat process.
type Profile struct {
	// Mode is "dev" or "prod".
	Mode string
	// Addr is the bind address of the worker gateway, the surface the page
	// talks to.
	Addr string
	// BackendAddr is the bind address of the persistence backend API.
	BackendAddr string
	// BackendURL is where the worker's sync client reaches the backend.
	BackendURL string
	// Upstream is the origin serving everything the gateway does not
	// intercept (the page application).
	Upstream string
	// Data is the directory holding local state (sqlite database).
	Data string
	// Driver selects the store backend: sqlite, postgres, or mysql.
	Driver string
	// DSN is the driver-specific connection string.
	DSN string
	// EngineURL is the base URL of the local inference engine.
	EngineURL string
	// DefaultModel is used when a chat request names no model.
	DefaultModel string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// New reads LOCALCHAT_* environment variables into a validated Profile.
func New() (*Profile, error) {
	v := viper.New()
	v.SetEnvPrefix("localchat")
	v.AutomaticEnv()

	v.SetDefault("mode", "dev")
	v.SetDefault("addr", ":3080")
	v.SetDefault("backend_addr", ":3081")
	v.SetDefault("backend_url", "http://127.0.0.1:3081")
	v.SetDefault("upstream", "http://127.0.0.1:3000")
	v.SetDefault("data", "data")
	v.SetDefault("driver", "sqlite")
	v.SetDefault("dsn", "")
	v.SetDefault("engine_url", "http://127.0.0.1:11434")
	v.SetDefault("default_model", "llama3.2:1b")

	p := &Profile{
		Mode:         v.GetString("mode"),
		Addr:         v.GetString("addr"),
		BackendAddr:  v.GetString("backend_addr"),
		BackendURL:   v.GetString("backend_url"),
		Upstream:     v.GetString("upstream"),
		Data:         v.GetString("data"),
		Driver:       v.GetString("driver"),
		DSN:          v.GetString("dsn"),
		EngineURL:    v.GetString("engine_url"),
		DefaultModel: v.GetString("default_model"),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) validate() error {
	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(p.Data, "localchat.db")
		}
	case "postgres", "mysql":
		if p.DSN == "" {
			return errors.Errorf("driver %q requires LOCALCHAT_DSN", p.Driver)
		}
	default:
		return errors.Errorf("unknown store driver %q", p.Driver)
	}

	for _, raw := range []string{p.Upstream, p.BackendURL, p.EngineURL} {
		if _, err := url.Parse(raw); err != nil {
			return errors.Wrapf(err, "invalid URL %q", raw)
		}
	}
	return nil
}
