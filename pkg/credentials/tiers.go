package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// TierTopics splits a tier's topic vocabulary into what the agent
// should volunteer and what it may discuss when asked. The collab
// engine's heuristic keyword set is built from both lists.
type TierTopics struct {
	LeadWith      []string `json:"lead_with" mapstructure:"lead_with"`
	DiscussFreely []string `json:"discuss_freely" mapstructure:"discuss_freely"`
}

// TierSettings are the defaults snapshotted onto a token at creation.
type TierSettings struct {
	Topics       TierTopics `json:"topics" mapstructure:"topics"`
	Goals        []string   `json:"goals" mapstructure:"goals"`
	Capabilities []string   `json:"capabilities" mapstructure:"capabilities"`
}

// legacyTierAliases maps pre-a2a tier names onto current tiers. Applied
// on read only; nothing is rewritten on disk.
var legacyTierAliases = map[string]a2a.Tier{
	"chat-only":   a2a.TierPublic,
	"tools-read":  a2a.TierFriends,
	"tools-write": a2a.TierFamily,
}

// NormalizeTier resolves legacy aliases and returns whether the result
// is a known tier.
func NormalizeTier(raw string) (a2a.Tier, bool) {
	if alias, ok := legacyTierAliases[raw]; ok {
		return alias, true
	}
	t := a2a.Tier(raw)
	return t, t.Valid()
}

func defaultTierSettings() map[a2a.Tier]TierSettings {
	return map[a2a.Tier]TierSettings{
		a2a.TierPublic: {
			Topics: TierTopics{
				LeadWith:      []string{"open source", "public projects"},
				DiscussFreely: []string{"technology", "tools", "general interests"},
			},
			Goals:        []string{"exchange introductions"},
			Capabilities: []string{},
		},
		a2a.TierFriends: {
			Topics: TierTopics{
				LeadWith:      []string{"current projects", "shared interests"},
				DiscussFreely: []string{"work", "collaboration ideas", "technology", "plans"},
			},
			Goals:        []string{"find collaboration opportunities", "share useful context"},
			Capabilities: []string{"context-read"},
		},
		a2a.TierFamily: {
			Topics: TierTopics{
				LeadWith:      []string{"schedule", "household", "plans"},
				DiscussFreely: []string{"everything"},
			},
			Goals:        []string{"coordinate freely"},
			Capabilities: []string{"context-read", "context-write"},
		},
		a2a.TierCustom: {},
	}
}

// TierConfig resolves per-tier defaults, preferring the on-disk
// a2a-config.json over the built-in defaults. It can watch the file and
// reload on change.
type TierConfig struct {
	mu       sync.RWMutex
	path     string
	settings map[a2a.Tier]TierSettings
	owner    OwnerDefaults
}

// OwnerDefaults carries owner-level settings from a2a-config.json.
type OwnerDefaults struct {
	Name    string `json:"name" mapstructure:"name"`
	Context string `json:"context" mapstructure:"context"`
}

type tierConfigFile struct {
	Tiers map[string]map[string]any `json:"tiers"`
	Owner map[string]any            `json:"owner"`
}

// LoadTierConfig builds a TierConfig from path. A missing file is not
// an error; built-in defaults apply.
func LoadTierConfig(path string) (*TierConfig, error) {
	tc := &TierConfig{
		path:     path,
		settings: defaultTierSettings(),
	}
	if err := tc.reload(); err != nil {
		return nil, err
	}
	return tc, nil
}

func (tc *TierConfig) reload() error {
	data, err := os.ReadFile(tc.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read tier config")
	}

	var file tierConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "failed to parse tier config")
	}

	settings := defaultTierSettings()
	for name, raw := range file.Tiers {
		tier, ok := NormalizeTier(name)
		if !ok {
			continue
		}
		base := settings[tier]
		// ZeroFields replaces an overridden list wholesale instead of
		// writing it element-by-element over the default entries.
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			ZeroFields: true,
			Result:     &base,
		})
		if err != nil {
			return errors.Wrap(err, "failed to build tier decoder")
		}
		if err := dec.Decode(raw); err != nil {
			return errors.Wrapf(err, "failed to decode tier %q settings", name)
		}
		settings[tier] = base
	}

	var owner OwnerDefaults
	if file.Owner != nil {
		if err := mapstructure.Decode(file.Owner, &owner); err != nil {
			return errors.Wrap(err, "failed to decode owner defaults")
		}
	}

	tc.mu.Lock()
	tc.settings = settings
	tc.owner = owner
	tc.mu.Unlock()
	return nil
}

// Settings returns the effective settings for a tier.
func (tc *TierConfig) Settings(tier a2a.Tier) TierSettings {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.settings[tier]
}

// Owner returns the owner defaults.
func (tc *TierConfig) Owner() OwnerDefaults {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.owner
}

// Watch reloads the config whenever the file changes, until ctx is
// cancelled. Parse failures keep the previous settings.
func (tc *TierConfig) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create config watcher")
	}
	// Watch the directory: editors replace files, which drops a watch
	// set on the file itself.
	if err := watcher.Add(filepath.Dir(tc.path)); err != nil {
		watcher.Close()
		return errors.Wrap(err, "failed to watch config directory")
	}

	go func() {
		defer watcher.Close()
		log := logger.WithComponent(ctx, "credentials")
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != tc.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := tc.reload(); err != nil {
					log.WithError(err).Warn("tier config reload failed, keeping previous settings")
					continue
				}
				log.Info("tier config reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("tier config watcher error")
			}
		}
	}()
	return nil
}
