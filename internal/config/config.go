// Package config implements TOML configuration loading and writing for
// datalab-go. The config file holds the service base URLs, the requested
// service profile, the default query timeout, and the login state that
// the login/logout commands maintain.
package config

// Config is the top-level structure parsed from ~/.datalab/config.toml.
type Config struct {
	Login   LoginConfig   `toml:"login"`
	Service ServiceConfig `toml:"service"`
}

// LoginConfig records who is currently logged in. The token itself is
// never stored here; it lives in a per-user token file.
type LoginConfig struct {
	User   string `toml:"user"`
	Status string `toml:"status"` // "loggedin" or "loggedout"
}

// ServiceConfig holds the per-service base URLs and shared request
// parameters.
type ServiceConfig struct {
	AuthURL    string `toml:"auth_url"`
	QueryURL   string `toml:"query_url"`
	StorageURL string `toml:"storage_url"`
	Profile    string `toml:"profile"`
	Timeout    int    `toml:"timeout"` // sync query timeout request, seconds
}

// LoggedIn reports whether a user is recorded as logged in.
func (c *Config) LoggedIn() bool {
	return c.Login.Status == "loggedin" && c.Login.User != ""
}
