package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/movienight/internal/integrations"
	"github.com/example/movienight/internal/persistence"
)

// Setting keys.
const (
	SettingPlexURL         = "plex_url"
	SettingPlexToken       = "plex_token"
	SettingOverseerrURL    = "overseerr_url"
	SettingOverseerrAPIKey = "overseerr_api_key"
	SettingTautulliURL     = "tautulli_url"
	SettingTautulliAPIKey  = "tautulli_api_key"
	SettingTMDBAPIKey      = "tmdb_api_key"
	SettingSessionSecret   = "session_secret"
)

// maskedValue replaces secrets on read. Submitting it back leaves the stored
// secret unchanged.
const maskedValue = "********"

type settingSpec struct {
	key    string
	secret bool
	isURL  bool
}

// editableSettings are the keys operators see, in display order.
var editableSettings = []settingSpec{
	{key: SettingPlexURL, isURL: true},
	{key: SettingPlexToken, secret: true},
	{key: SettingOverseerrURL, isURL: true},
	{key: SettingOverseerrAPIKey, secret: true},
	{key: SettingTautulliURL, isURL: true},
	{key: SettingTautulliAPIKey, secret: true},
	{key: SettingTMDBAPIKey, secret: true},
}

// IntegrationConfigurer receives connection settings whenever they change.
type IntegrationConfigurer interface {
	Apply(settings integrations.Settings)
}

// SettingsService reads and writes application settings and keeps the
// integration clients in step with them. It also owns the session secret.
type SettingsService struct {
	settings     persistence.SettingsRepository
	integrations IntegrationConfigurer
	now          func() time.Time
	logger       *slog.Logger

	mu     sync.Mutex
	secret []byte
}

// NewSettingsService wires dependencies for settings operations.
func NewSettingsService(settings persistence.SettingsRepository, configurer IntegrationConfigurer, now func() time.Time) *SettingsService {
	return NewSettingsServiceWithLogger(settings, configurer, now, nil)
}

// NewSettingsServiceWithLogger wires dependencies with a specified logger.
func NewSettingsServiceWithLogger(settings persistence.SettingsRepository, configurer IntegrationConfigurer, now func() time.Time, logger *slog.Logger) *SettingsService {
	if now == nil {
		now = time.Now
	}
	return &SettingsService{
		settings:     settings,
		integrations: configurer,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *SettingsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SettingsService", operation, attrs...)
}

// GetSettings returns every editable setting with secrets masked.
// Requires canAccessSettings.
func (s *SettingsService) GetSettings(ctx context.Context, principal Principal) ([]SettingValue, error) {
	if s == nil {
		return nil, fmt.Errorf("SettingsService is nil")
	}
	if err := requireApp(principal, canAccessSettings); err != nil {
		return nil, err
	}
	stored, err := s.settings.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	return maskSettings(stored), nil
}

// UpdateSettings stores the submitted values. An empty value clears a key;
// a masked secret is left as it is.
func (s *SettingsService) UpdateSettings(ctx context.Context, principal Principal, values map[string]string) (result []SettingValue, err error) {
	if s == nil {
		err = fmt.Errorf("SettingsService is nil")
		return
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	logger := s.loggerWith(ctx, "UpdateSettings", "principal_id", principal.UserID, "keys", keys)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update settings", "")
			return
		}
		logger.InfoContext(ctx, "settings updated")
	}()

	if err = requireApp(principal, canAccessSettings); err != nil {
		return
	}

	specs := make(map[string]settingSpec, len(editableSettings))
	for _, spec := range editableSettings {
		specs[spec.key] = spec
	}

	vErr := &ValidationError{}
	changes := make(map[string]string, len(values))
	for _, key := range keys {
		spec, ok := specs[key]
		if !ok {
			vErr.add(key, "unknown setting")
			continue
		}
		value := strings.TrimSpace(values[key])
		if spec.secret && value == maskedValue {
			continue
		}
		if spec.isURL && value != "" {
			if inputValidator().Var(value, "url") != nil {
				vErr.add(key, strings.ReplaceAll(key, "_", " ")+" must be a URL")
				continue
			}
			value = strings.TrimRight(value, "/")
		}
		changes[key] = value
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.settings.SetSettings(ctx, changes, s.now()); err != nil {
		return
	}
	var stored map[string]string
	if stored, err = s.apply(ctx); err != nil {
		return
	}
	result = maskSettings(stored)
	return
}

// LoadIntoIntegrations pushes the stored connection settings to the clients.
func (s *SettingsService) LoadIntoIntegrations(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("SettingsService is nil")
	}
	_, err := s.apply(ctx)
	return err
}

func (s *SettingsService) apply(ctx context.Context) (map[string]string, error) {
	stored, err := s.settings.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	if s.integrations != nil {
		s.integrations.Apply(integrations.Settings{
			PlexURL:         stored[SettingPlexURL],
			PlexToken:       stored[SettingPlexToken],
			OverseerrURL:    stored[SettingOverseerrURL],
			OverseerrAPIKey: stored[SettingOverseerrAPIKey],
			TautulliURL:     stored[SettingTautulliURL],
			TautulliAPIKey:  stored[SettingTautulliAPIKey],
			TMDBAPIKey:      stored[SettingTMDBAPIKey],
		})
	}
	return stored, nil
}

// SessionSecret returns the key guest sessions are signed with, generating
// and storing one on first use.
func (s *SettingsService) SessionSecret(ctx context.Context) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("SettingsService is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret != nil {
		return s.secret, nil
	}

	value, err := s.settings.GetSetting(ctx, SettingSessionSecret)
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && value == "") {
		value = NewToken()
		if err = s.settings.SetSettings(ctx, map[string]string{SettingSessionSecret: value}, s.now()); err != nil {
			return nil, fmt.Errorf("store session secret: %w", err)
		}
		s.loggerWith(ctx, "SessionSecret").InfoContext(ctx, "session secret generated")
	} else if err != nil {
		return nil, err
	}

	s.secret = []byte(value)
	return s.secret, nil
}

func maskSettings(stored map[string]string) []SettingValue {
	out := make([]SettingValue, 0, len(editableSettings))
	for _, spec := range editableSettings {
		value, ok := stored[spec.key]
		isSet := ok && value != ""
		if spec.secret && isSet {
			value = maskedValue
		}
		out = append(out, SettingValue{Key: spec.key, Value: value, IsSet: isSet, Secret: spec.secret})
	}
	return out
}
