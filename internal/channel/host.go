package channel

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/config"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// Skill describes one remote skill this bot may delegate to.
type Skill struct {
	ID             string
	AppID          string
	ResourceURL    string
	Endpoint       string
	TokenProvider  string // connection name; empty uses the host default
	ChannelFactory string
	Timeout        time.Duration
}

// SkillsFromConfig converts configured skill channels.
func SkillsFromConfig(cfg *config.Config) []Skill {
	skills := make([]Skill, 0, len(cfg.Skills.Channels))
	for _, s := range cfg.Skills.Channels {
		skills = append(skills, Skill{
			ID:             s.ID,
			AppID:          s.AppID,
			ResourceURL:    s.ResourceURL,
			Endpoint:       s.Endpoint,
			TokenProvider:  s.TokenProvider,
			ChannelFactory: s.ChannelFactory,
			Timeout:        s.Timeout.Duration,
		})
	}
	return skills
}

// HostOptions configures a Host.
type HostOptions struct {
	// HostAppID is this bot's app id, the sender of every skill post.
	HostAppID string
	// DefaultTokens serves skills that name no token provider.
	DefaultTokens auth.AccessTokenProvider
	Logger        *slog.Logger
}

// Host is the registry of known skills and the channel factories and token
// providers needed to reach them. The skill table is replaced atomically on
// config reload; lookups never see a partial table.
type Host struct {
	providers     *auth.ProviderRegistry
	defaultTokens auth.AccessTokenProvider
	hostAppID     string
	logger        *slog.Logger

	mu           sync.RWMutex
	hostEndpoint string
	skills       map[string]Skill
	factories    map[string]Factory
}

// NewHost creates an empty host. Register factories and call SetSkills
// before serving.
func NewHost(providers *auth.ProviderRegistry, opts HostOptions) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if providers == nil {
		providers = auth.NewProviderRegistry()
	}
	defaultTokens := opts.DefaultTokens
	if defaultTokens == nil {
		defaultTokens = auth.AnonymousTokenProvider{}
	}
	return &Host{
		providers:     providers,
		defaultTokens: defaultTokens,
		hostAppID:     opts.HostAppID,
		logger:        logger,
		skills:        make(map[string]Skill),
		factories:     make(map[string]Factory),
	}
}

// RegisterFactory adds or replaces a named channel factory.
func (h *Host) RegisterFactory(name string, f Factory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[name] = f
}

// SetSkills replaces the host endpoint and the whole skill table.
func (h *Host) SetSkills(hostEndpoint string, skills []Skill) {
	table := make(map[string]Skill, len(skills))
	for _, s := range skills {
		table[s.ID] = s
	}
	h.mu.Lock()
	h.hostEndpoint = hostEndpoint
	h.skills = table
	h.mu.Unlock()
}

// OnConfigReload implements config.Reloadable.
func (h *Host) OnConfigReload(cfg *config.Config) error {
	skills := SkillsFromConfig(cfg)
	for _, s := range skills {
		if err := h.checkResolvable(s); err != nil {
			return err
		}
	}
	h.SetSkills(cfg.Skills.HostEndpoint, skills)
	h.logger.Info("skill table reloaded", "skills", len(skills), "host_endpoint", cfg.Skills.HostEndpoint)
	return nil
}

func (h *Host) checkResolvable(s Skill) error {
	if s.TokenProvider != "" {
		if _, err := h.providers.Get(s.TokenProvider); err != nil {
			return fmt.Errorf("skill %s: %w", s.ID, err)
		}
	}
	h.mu.RLock()
	_, ok := h.factories[s.ChannelFactory]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("skill %s: channel factory %q is not registered", s.ID, s.ChannelFactory)
	}
	return nil
}

// HostEndpoint returns the URL skills call back on.
func (h *Host) HostEndpoint() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hostEndpoint
}

// HostAppID returns this bot's app id.
func (h *Host) HostAppID() string { return h.hostAppID }

// Skill returns the named skill.
func (h *Host) Skill(id string) (Skill, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.skills[id]
	return s, ok
}

// Skills returns all skills sorted by id.
func (h *Host) Skills() []Skill {
	h.mu.RLock()
	out := make([]Skill, 0, len(h.skills))
	for _, s := range h.skills {
		out = append(out, s)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetChannel resolves the named skill's token provider and channel factory
// and returns a channel for it.
func (h *Host) GetChannel(id string) (Channel, Skill, error) {
	h.mu.RLock()
	s, ok := h.skills[id]
	f, fok := h.factories[s.ChannelFactory]
	h.mu.RUnlock()

	if !ok {
		return nil, Skill{}, fmt.Errorf("%w: %q", relayerrors.ErrSkillNotFound, id)
	}
	if !fok {
		return nil, s, fmt.Errorf("skill %s: channel factory %q is not registered", id, s.ChannelFactory)
	}

	tokens := h.defaultTokens
	if s.TokenProvider != "" {
		p, err := h.providers.Get(s.TokenProvider)
		if err != nil {
			return nil, s, fmt.Errorf("skill %s: %w", id, err)
		}
		tokens = p
	}
	return f.CreateChannel(tokens, s.Timeout), s, nil
}
