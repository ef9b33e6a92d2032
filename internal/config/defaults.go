package config

// Default service endpoints for the public Data Lab deployment.
const (
	DefaultAuthURL    = "https://datalab.noirlab.edu/auth"
	DefaultQueryURL   = "https://datalab.noirlab.edu/query"
	DefaultStorageURL = "https://datalab.noirlab.edu/storage"
	DefaultProfile    = "default"
	DefaultTimeout    = 120
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Login: LoginConfig{
			Status: "loggedout",
		},
		Service: ServiceConfig{
			AuthURL:    DefaultAuthURL,
			QueryURL:   DefaultQueryURL,
			StorageURL: DefaultStorageURL,
			Profile:    DefaultProfile,
			Timeout:    DefaultTimeout,
		},
	}
}
