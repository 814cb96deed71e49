package endpoints

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/svcctx"
)

// SettingsResponse contains every config entry with its effective value.
type SettingsResponse struct {
	File     string         `json:"file,omitempty" yaml:"file,omitempty"`
	Settings []config.Entry `json:"settings" yaml:"settings"`
}

// ListSettingsEndpoint handles GET /api/settings.
type ListSettingsEndpoint struct{}

func (e *ListSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings", e.handler
}

func (e *ListSettingsEndpoint) RequiresInit() bool { return false }

func (e *ListSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cm := svcctx.ConfigFrom(r.Context())
	if cm == nil {
		writeError(w, http.StatusServiceUnavailable, "config manager not available")
		return
	}
	entries := cm.Entries()
	for i := range entries {
		entries[i].Value = maskSecret(entries[i].Key, entries[i].Value)
	}
	writeJSON(w, http.StatusOK, SettingsResponse{File: cm.FileUsed(), Settings: entries})
}

func (e *ListSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SettingsResponse
			if err := client.Get(cmd.Context(), "/api/settings", &resp); err != nil {
				return err
			}

			// Filter by prefix if specified
			if prefix != "" {
				filtered := resp.Settings[:0]
				for _, e := range resp.Settings {
					if strings.HasPrefix(e.Key, prefix) {
						filtered = append(filtered, e)
					}
				}
				resp.Settings = filtered
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Filter by key prefix (e.g., 'split.')")
	return cmd
}

// GetSettingEndpoint handles GET /api/settings/{key}.
type GetSettingEndpoint struct{}

func (e *GetSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings/{key}", e.handler
}

func (e *GetSettingEndpoint) RequiresInit() bool { return false }

func (e *GetSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key encoding")
		return
	}
	cm := svcctx.ConfigFrom(r.Context())
	if cm == nil {
		writeError(w, http.StatusServiceUnavailable, "config manager not available")
		return
	}

	value, err := cm.Value(key)
	if errors.Is(err, config.ErrInvalidKey) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entry := config.Entry{Key: key, Value: maskSecret(key, value)}
	if def := config.GetDefault(key); def != nil {
		entry.Description = def.Description
	}
	writeJSON(w, http.StatusOK, entry)
}

func (e *GetSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var entry config.Entry
			if err := client.Get(cmd.Context(), "/api/settings/"+url.PathEscape(args[0]), &entry); err != nil {
				return err
			}
			return api.Output(entry)
		},
	}
}

// maskSecret hides literal API keys. Environment references such as
// ${OPENAI_API_KEY} are shown as-is.
func maskSecret(key string, value any) any {
	if !strings.HasSuffix(key, "api_key") {
		return value
	}
	s, ok := value.(string)
	if !ok || s == "" || strings.HasPrefix(s, "${") {
		return value
	}
	return "********"
}
