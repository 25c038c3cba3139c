package config

import (
	"os"
	"strings"
)

// GetWebhookSecret returns the shared secret expected from the spreadsheet
// trigger script. Empty means the check is disabled.
func GetWebhookSecret() string {
	return strings.TrimSpace(os.Getenv("SHEETS_WEBHOOK_SECRET"))
}
