package main

import (
	"fmt"
	"log/slog"

	"github.com/memohai/askbot/internal/channel"
	"github.com/memohai/askbot/internal/channel/adapters/discord"
	"github.com/memohai/askbot/internal/channel/adapters/telegram"
	"github.com/memohai/askbot/internal/classify"
	"github.com/memohai/askbot/internal/config"
	"github.com/memohai/askbot/internal/dispatch"
	"github.com/memohai/askbot/internal/memory"
	"github.com/memohai/askbot/internal/providers"
)

// providerSet holds the enabled providers; disabled ones are nil.
type providerSet struct {
	Claude *providers.Claude
	GPT    *providers.GPT
	Gemini *providers.Gemini
	Ollama *providers.Ollama
}

func providerOptions(name string, pc config.ProviderConfig) providers.Options {
	return providers.Options{
		Name:        name,
		APIKey:      pc.APIKey,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
		Confidence:  pc.Confidence,
		Timeout:     pc.TimeoutDuration(),
	}
}

func buildProviders(log *slog.Logger, cfg config.ProvidersConfig) providerSet {
	var set providerSet
	if cfg.Claude.Enabled {
		set.Claude = providers.NewClaude(log, providerOptions("Claude", cfg.Claude))
	}
	if cfg.GPT.Enabled {
		set.GPT = providers.NewGPT(log, providerOptions("GPT", cfg.GPT))
	}
	if cfg.Gemini.Enabled {
		set.Gemini = providers.NewGemini(log, providerOptions("Gemini", cfg.Gemini))
	}
	if cfg.Ollama.Enabled {
		set.Ollama = providers.NewOllama(log, providerOptions("Ollama", cfg.Ollama))
	}
	return set
}

// primary returns Claude as a Provider, or a nil interface when disabled.
func (s providerSet) primary() providers.Provider {
	if s.Claude == nil {
		return nil
	}
	return s.Claude
}

func (s providerSet) routes() map[classify.Category]providers.Provider {
	routes := map[classify.Category]providers.Provider{}
	if s.GPT != nil {
		routes[classify.Coding] = s.GPT
	}
	if s.Gemini != nil {
		routes[classify.Reasoning] = s.Gemini
	}
	if s.Ollama != nil {
		routes[classify.Memory] = s.Ollama
	}
	return routes
}

// all lists the enabled providers in call-issue order.
func (s providerSet) all() []providers.Provider {
	items := []providers.Provider{}
	if p := s.primary(); p != nil {
		items = append(items, p)
	}
	for _, category := range classify.Categories {
		if p, ok := s.routes()[category]; ok {
			items = append(items, p)
		}
	}
	return items
}

func openStore(log *slog.Logger, cfg config.Config) (*memory.Store, error) {
	store, err := memory.Open(cfg.Memory.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func newDispatcher(log *slog.Logger, cfg config.Config, store *memory.Store, set providerSet) *dispatch.Dispatcher {
	return dispatch.New(log, store, set.primary(), set.routes(), dispatch.Options{
		HistoryCap: cfg.Memory.HistoryCap,
	})
}

// buildRegistry registers one adapter per gateway that has a token.
func buildRegistry(log *slog.Logger, cfg config.Config) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	if cfg.Discord.Enabled && cfg.Discord.BotToken != "" {
		if err := registry.Register(discord.NewDiscordAdapter(log, cfg.Discord.BotToken)); err != nil {
			return nil, err
		}
	}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		if err := registry.Register(telegram.NewTelegramAdapter(log, cfg.Telegram.BotToken)); err != nil {
			return nil, err
		}
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("no gateway configured: set DISCORD_TOKEN or TELEGRAM_TOKEN")
	}
	return registry, nil
}
