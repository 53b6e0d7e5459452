// The worker drains the shared Redis job queue and delivers outbound mail.
// Each supported recipient domain has its own SMTP transport since the
// providers require authenticated submission through their own servers.
package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/smtp"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/joho/godotenv"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport is one outbound SMTP account.
type Transport struct {
	Host string
	Port string
	User string
	Pass string
}

func (t Transport) configured() bool { return t.Host != "" && t.User != "" }

type Config struct {
	RedisAddr string
	Env       string
	// Transports keyed by the recipient domain they serve.
	Transports map[string]Transport
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func cfg() Config {
	_ = godotenv.Load()
	return Config{
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		Env:       getEnv("ENV", "dev"),
		Transports: map[string]Transport{
			"@gmail.com": {
				Host: getEnv("GMAIL_SMTP_HOST", "smtp.gmail.com"),
				Port: getEnv("GMAIL_SMTP_PORT", "587"),
				User: getEnv("GMAIL_USER", ""),
				Pass: getEnv("GMAIL_PASSWORD", ""),
			},
			"@cit.edu": {
				Host: getEnv("OUTLOOK_SMTP_HOST", "smtp-mail.outlook.com"),
				Port: getEnv("OUTLOOK_SMTP_PORT", "587"),
				User: getEnv("OUTLOOK_USER", ""),
				Pass: getEnv("OUTLOOK_PASSWORD", ""),
			},
		},
	}
}

// transportFor picks the transport whose domain suffix matches the recipient.
func transportFor(c Config, to string) (Transport, error) {
	for domain, t := range c.Transports {
		if strings.HasSuffix(to, domain) {
			if !t.configured() {
				return Transport{}, fmt.Errorf("transport for %s not configured", domain)
			}
			return t, nil
		}
	}
	return Transport{}, fmt.Errorf("no transport for recipient %s", to)
}

//go:embed templates/*.tmpl
var templatesFS embed.FS

var mailTemplates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

type Job struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type EmailJob struct {
	To       string      `json:"to"`
	Template string      `json:"template"`
	Data     interface{} `json:"data"`
}

// Email address validation regex based on RFC 5322 simplified pattern
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// HTML sanitization policy for email bodies
var htmlPolicy = bluemonday.UGCPolicy()

// sanitizeEmailHeader removes CRLF characters that could be used for header injection
func sanitizeEmailHeader(input string) string {
	sanitized := strings.ReplaceAll(input, "\r", "")
	sanitized = strings.ReplaceAll(sanitized, "\n", "")
	return strings.TrimSpace(sanitized)
}

// validateEmailAddress checks if an email address is valid
func validateEmailAddress(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email address cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	return nil
}

// sanitizeAndValidateEmail sanitizes and validates an email address
func sanitizeAndValidateEmail(email string) (string, error) {
	sanitized := sanitizeEmailHeader(email)
	if err := validateEmailAddress(sanitized); err != nil {
		return "", err
	}
	return sanitized, nil
}

// sanitizeEmailBody removes potentially harmful HTML or scripts from an email body
func sanitizeEmailBody(body []byte) string {
	return string(htmlPolicy.SanitizeBytes(body))
}

func sendEmail(c Config, j EmailJob) error {
	sanitizedTo, err := sanitizeAndValidateEmail(j.To)
	if err != nil {
		return fmt.Errorf("invalid To address: %w", err)
	}
	t, err := transportFor(c, sanitizedTo)
	if err != nil {
		return err
	}
	sanitizedFrom, err := sanitizeAndValidateEmail(t.User)
	if err != nil {
		return fmt.Errorf("invalid From address: %w", err)
	}

	var subjBuf, bodyBuf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&subjBuf, j.Template+"_subject", j.Data); err != nil {
		return err
	}
	if err := mailTemplates.ExecuteTemplate(&bodyBuf, j.Template+"_body", j.Data); err != nil {
		return err
	}

	// Sanitize the subject to prevent header injection
	sanitizedSubject := sanitizeEmailHeader(subjBuf.String())

	msg := bytes.Buffer{}
	msg.WriteString("From: " + sanitizedFrom + "\r\n")
	msg.WriteString("To: " + sanitizedTo + "\r\n")
	msg.WriteString("Subject: " + sanitizedSubject + "\r\n\r\n")
	msg.WriteString(sanitizeEmailBody(bodyBuf.Bytes()))
	addr := t.Host + ":" + t.Port
	auth := smtp.PlainAuth("", t.User, t.Pass, t.Host)
	return smtp.SendMail(addr, auth, sanitizedFrom, []string{sanitizedTo}, msg.Bytes())
}

func main() {
	c := cfg()
	if c.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("redis ping failed (queue not active yet)")
	}
	defer rdb.Close()

	log.Info().Msg("worker started")
	for {
		res, err := rdb.BLPop(ctx, 0, "jobs").Result()
		if err != nil {
			log.Error().Err(err).Msg("blpop")
			continue
		}
		if len(res) < 2 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			log.Error().Err(err).Msg("unmarshal job")
			continue
		}
		switch job.Type {
		case "send_email":
			var ej EmailJob
			if err := json.Unmarshal(job.Data, &ej); err != nil {
				log.Error().Err(err).Msg("unmarshal email job")
				continue
			}
			if err := sendEmail(c, ej); err != nil {
				log.Error().Err(err).Msg("send email")
			}
		default:
			log.Warn().Str("type", job.Type).Msg("unknown job type")
		}
	}
}
