package notify

// Config holds Discord notification configuration. An empty Token disables
// Discord and updates are only logged.
type Config struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Enabled reports whether Discord delivery is configured.
func (c Config) Enabled() bool {
	return c.Token != "" && c.Channel != ""
}
