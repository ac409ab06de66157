package smtp

// Config holds SMTP transport configuration.
// Embed this in your app config for env parsing with caarlos0/env.
// Password is an app password, not the account login password.
type Config struct {
	Host        string `env:"SMTP_HOST"`
	Port        int    `env:"SMTP_PORT" envDefault:"587"`
	Username    string `env:"SMTP_USERNAME"`
	Password    string `env:"SMTP_PASSWORD"`
	SenderEmail string `env:"SMTP_FROM_EMAIL"`
	SenderName  string `env:"SMTP_FROM_NAME"`
}
