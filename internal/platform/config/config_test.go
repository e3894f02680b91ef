package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"ORDERDESK_FIREBASE_PROJECT_ID": "od-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "od-dev" || cfg.PubSub.ProjectID != "od-dev" {
		t.Errorf("expected projects to default to firebase project, got %s / %s", cfg.Firestore.ProjectID, cfg.PubSub.ProjectID)
	}
	if cfg.Notify.MaxAttempts != 3 || cfg.Notify.Backoff != 2*time.Second || cfg.Notify.Timeout != 30*time.Second {
		t.Errorf("unexpected notify defaults: %+v", cfg.Notify)
	}
	if cfg.Orders.InvoiceDueDays != 7 || cfg.Orders.LowStockThreshold != 5 {
		t.Errorf("unexpected order defaults: %+v", cfg.Orders)
	}
	if cfg.Orders.Currency != "USD" || cfg.Orders.Numbering != NumberingCount {
		t.Errorf("unexpected currency or numbering: %+v", cfg.Orders)
	}
	if cfg.Mail.SMTPHost != "" || len(cfg.Mail.AdminEmails) != 0 {
		t.Errorf("expected mail disabled by default, got %+v", cfg.Mail)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"ORDERDESK_FIRESTORE_PROJECT_ID": "od-prod",
		"ORDERDESK_SERVER_PORT":          "9090",
		"ORDERDESK_SMTP_HOST":            "smtp.example.com",
		"ORDERDESK_SMTP_PORT":            "2525",
		"ORDERDESK_SMTP_PASSWORD":        "sm://projects/od-prod/secrets/smtp",
		"ORDERDESK_MAIL_FROM":            "orders@example.com",
		"ORDERDESK_ADMIN_EMAILS":         "ops@example.com, owner@example.com",
		"ORDERDESK_NUMBERING_STRATEGY":   "Counter",
		"ORDERDESK_CURRENCY":             "eur",
		"ORDERDESK_NOTIFY_BACKOFF":       "500ms",
	}
	var requested string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = ref
		return "hunter2", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(resolver), WithRequiredSecrets("Mail.SMTPPassword"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if requested != "secret://projects/od-prod/secrets/smtp" {
		t.Errorf("expected normalised secret ref, got %s", requested)
	}
	if cfg.Mail.SMTPPassword != "hunter2" || cfg.Mail.SMTPPort != 2525 {
		t.Errorf("unexpected mail config %+v", cfg.Mail)
	}
	if len(cfg.Mail.AdminEmails) != 2 || cfg.Mail.AdminEmails[1] != "owner@example.com" {
		t.Errorf("unexpected admin emails %v", cfg.Mail.AdminEmails)
	}
	if cfg.Orders.Numbering != NumberingCounter || cfg.Orders.Currency != "EUR" {
		t.Errorf("unexpected order config %+v", cfg.Orders)
	}
	if cfg.Notify.Backoff != 500*time.Millisecond {
		t.Errorf("unexpected backoff %s", cfg.Notify.Backoff)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port %s", cfg.Server.Port)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "ORDERDESK_SERVER_PORT=7070\nORDERDESK_FIREBASE_PROJECT_ID=\"od-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(),
		WithEnvMap(map[string]string{"ORDERDESK_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "od-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"ORDERDESK_NUMBERING_STRATEGY": "random",
	}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T %v", err, err)
	}
	fields := validation.Fields()
	if len(fields) != 2 || fields[0] != "Firestore.ProjectID" || fields[1] != "Orders.Numbering" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"ORDERDESK_FIREBASE_PROJECT_ID": "od-dev",
		"ORDERDESK_SMTP_PASSWORD":       "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"ORDERDESK_FIREBASE_PROJECT_ID": "od-dev"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Mail.SMTPPassword"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T %v", err, err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Mail.SMTPPassword" {
		t.Fatalf("unexpected names %v", names)
	}
}
