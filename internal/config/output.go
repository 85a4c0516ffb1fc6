package config

import "fmt"

// OutputType discriminates the closed set of output channel variants.
type OutputType string

const (
	OutputEmail     OutputType = "email"
	OutputMessenger OutputType = "messenger"
)

// OutputDescriptor is a tagged variant: Type selects which typed bundle is populated.
type OutputDescriptor struct {
	Type      OutputType       `yaml:"type" toml:"type"`
	Name      string           `yaml:"name,omitempty" toml:"name,omitempty"`
	Email     *EmailConfig     `yaml:"email,omitempty" toml:"email,omitempty"`
	Messenger *MessengerConfig `yaml:"messenger,omitempty" toml:"messenger,omitempty"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	To       string `yaml:"to" toml:"to"`
	From     string `yaml:"from" toml:"from"`
	SMTPHost string `yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port" toml:"smtp_port"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	// TLS is one of starttls (default), tls, none.
	TLS string `yaml:"tls" toml:"tls"`
}

// MessengerConfig configures delivery through a Graph-API style chat messenger.
type MessengerConfig struct {
	RecipientID string `yaml:"recipient_id" toml:"recipient_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	APIURL      string `yaml:"api_url" toml:"api_url"`
}

// Label returns the descriptor's name, or "<type>-<index>" when unnamed.
func (d OutputDescriptor) Label(index int) string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("%s-%d", d.Type, index)
}
