package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPrefix = "ORDERDESK_"

	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 20 * time.Second
	defaultLogLevel          = "info"
	defaultSMTPPort          = 587
	defaultNotifyAttempts    = 3
	defaultNotifyBackoff     = 2 * time.Second
	defaultNotifyTimeout     = 30 * time.Second
	defaultDispatchTimeout   = 2 * time.Minute
	defaultInvoiceDueDays    = 7
	defaultLowStockThreshold = 5
	defaultCurrency          = "USD"
	defaultPubSubTopic       = "orderdesk-events"
	defaultUsersSource       = true
)

// NumberingStrategy selects how invoice and order numbers are drawn.
type NumberingStrategy string

const (
	// NumberingCount counts documents in the current window and adds one.
	NumberingCount NumberingStrategy = "count"
	// NumberingCounter increments a dedicated counter document per window.
	NumberingCounter NumberingStrategy = "counter"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Storage     StorageConfig
	Mail        MailConfig
	Notify      NotifyConfig
	Orders      OrderConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings. UsersAsClients enables the Firebase Auth
// user directory as a second client source.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	UsersAsClients  bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topic domain events are published to. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// StorageConfig names the bucket invoice PDFs are archived to. Empty disables archiving.
type StorageConfig struct {
	InvoiceBucket string
}

// MailConfig configures the SMTP transport. An empty host disables email.
type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	AdminEmails  []string
}

// NotifyConfig bounds notification delivery.
type NotifyConfig struct {
	MaxAttempts     int
	Backoff         time.Duration
	Timeout         time.Duration
	DispatchTimeout time.Duration
}

// OrderConfig carries domain tunables.
type OrderConfig struct {
	InvoiceDueDays    int
	LowStockThreshold int
	Currency          string
	Numbering         NumberingStrategy
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
// Names are redacted in the message.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		redacted = append(redacted, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the missing secret field names.
func (e *MissingSecretsError) Names() []string {
	return append([]string(nil), e.names...)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over the
// system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Mail.SMTPPassword") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the configuration: defaults < .env < OS environment < explicit map, then
// resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		key = envPrefix + key
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "ENVIRONMENT", "local")),
		LogLevel:    strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "FIREBASE_CREDENTIALS_FILE", ""),
			UsersAsClients:  boolWithDefault(lookup, "FIREBASE_USERS_AS_CLIENTS", defaultUsersSource),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID: stringWithDefault(lookup, "PUBSUB_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "PUBSUB_TOPIC", defaultPubSubTopic),
		},
		Storage: StorageConfig{
			InvoiceBucket: stringWithDefault(lookup, "STORAGE_INVOICE_BUCKET", ""),
		},
		Mail: MailConfig{
			SMTPHost:     stringWithDefault(lookup, "SMTP_HOST", ""),
			SMTPPort:     intWithDefault(lookup, "SMTP_PORT", defaultSMTPPort),
			SMTPUsername: stringWithDefault(lookup, "SMTP_USERNAME", ""),
			SMTPPassword: stringWithDefault(lookup, "SMTP_PASSWORD", ""),
			From:         stringWithDefault(lookup, "MAIL_FROM", ""),
			AdminEmails:  csvWithDefault(lookup, "ADMIN_EMAILS"),
		},
		Notify: NotifyConfig{
			MaxAttempts:     intWithDefault(lookup, "NOTIFY_MAX_ATTEMPTS", defaultNotifyAttempts),
			Backoff:         durationWithDefault(lookup, "NOTIFY_BACKOFF", defaultNotifyBackoff),
			Timeout:         durationWithDefault(lookup, "NOTIFY_TIMEOUT", defaultNotifyTimeout),
			DispatchTimeout: durationWithDefault(lookup, "NOTIFY_DISPATCH_TIMEOUT", defaultDispatchTimeout),
		},
		Orders: OrderConfig{
			InvoiceDueDays:    intWithDefault(lookup, "INVOICE_DUE_DAYS", defaultInvoiceDueDays),
			LowStockThreshold: intWithDefault(lookup, "LOW_STOCK_THRESHOLD", defaultLowStockThreshold),
			Currency:          strings.ToUpper(stringWithDefault(lookup, "CURRENCY", defaultCurrency)),
			Numbering:         NumberingStrategy(strings.ToLower(stringWithDefault(lookup, "NUMBERING_STRATEGY", string(NumberingCount)))),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Mail.SMTPPassword", &cfg.Mail.SMTPPassword},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		if name = strings.TrimSpace(name); name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if cfg.Mail.SMTPHost != "" && strings.TrimSpace(cfg.Mail.From) == "" {
		invalid = append(invalid, "Mail.From")
	}
	if cfg.Notify.MaxAttempts <= 0 {
		invalid = append(invalid, "Notify.MaxAttempts")
	}
	if cfg.Orders.InvoiceDueDays <= 0 {
		invalid = append(invalid, "Orders.InvoiceDueDays")
	}
	if cfg.Orders.LowStockThreshold < 0 {
		invalid = append(invalid, "Orders.LowStockThreshold")
	}
	if len(cfg.Orders.Currency) != 3 {
		invalid = append(invalid, "Orders.Currency")
	}
	switch cfg.Orders.Numbering {
	case NumberingCount, NumberingCounter:
	default:
		invalid = append(invalid, "Orders.Numbering")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
