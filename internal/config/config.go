package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

// setDefaults applies the built-in defaults shared by every constructor
func setDefaults(v *viper.Viper) {
	v.SetDefault("projects.dir", "/storage6/dubbing_projects")
	v.SetDefault("server.host", "0.0.0.0")
	// Port 0 means "allocate from the pool" rather than a fixed bind.
	v.SetDefault("server.port", 0)
	v.SetDefault("server.port_pool", []int{8765, 8766, 8767})
	v.SetDefault("server.frontend_dir", "")
	v.SetDefault("session.lock_file", ".active_sessions.json")
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	// Set up environment variable mapping
	v.SetEnvPrefix("SEGED")
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("projects.dir", "PROJECTS_DIR")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.frontend_dir", "FRONTEND_DIR")
	v.BindEnv("session.lock_file", "LOCK_FILE")

	return &Configuration{viper: v}, nil
}

// GetProjectsDir returns the directory that holds the dubbing project roots
func (c *Configuration) GetProjectsDir() string {
	return c.viper.GetString("projects.dir")
}

// GetServerHost returns the host address the HTTP server binds to
func (c *Configuration) GetServerHost() string {
	return c.viper.GetString("server.host")
}

// GetServerPort returns the configured port; 0 requests pool allocation
func (c *Configuration) GetServerPort() int {
	return c.viper.GetInt("server.port")
}

// GetPortPool returns the ports the launcher may allocate from
func (c *Configuration) GetPortPool() []int {
	return c.viper.GetIntSlice("server.port_pool")
}

// GetFrontendDir returns the static frontend directory, empty when unset
func (c *Configuration) GetFrontendDir() string {
	return c.viper.GetString("server.frontend_dir")
}

// GetSessionLockFile returns the path of the active-sessions lock file
func (c *Configuration) GetSessionLockFile() string {
	return c.viper.GetString("session.lock_file")
}
