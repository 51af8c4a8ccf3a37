package backend

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"studyai/internal/config"
)

// NewChatModel builds the eino chat model for a configured provider.
func NewChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig) (model.BaseChatModel, error) {
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("api key for %s not configured", provider)
	}
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// Set bundles the three backends the workflows need.
type Set struct {
	Ingestor   Ingestor
	Answerer   Answerer
	Summarizer Summarizer
}

// NewSet wires the backends described by cfg. The mock backend keeps the
// simulated delays; provider backends ingest text through the file loader and
// answer through the chat model.
func NewSet(ctx context.Context, cfg *config.Config, pick Picker) (*Set, error) {
	mock := NewMock()
	mock.ProcessDelay = cfg.BasicConfig.ProcessDelay()
	mock.ReplyDelay = cfg.BasicConfig.ReplyDelay()
	mock.SummaryDelay = cfg.BasicConfig.SummaryDelay()
	mock.MaxBytes = cfg.MaxUploadBytes
	if pick != nil {
		mock.Pick = pick
	}
	if cfg.Backend == "mock" {
		return &Set{Ingestor: mock, Answerer: mock, Summarizer: mock}, nil
	}

	chatModel, err := NewChatModel(ctx, cfg.Backend, cfg.Providers[cfg.Backend])
	if err != nil {
		return nil, err
	}
	llm, err := NewLLM(chatModel)
	if err != nil {
		return nil, err
	}
	ingestor, err := NewFileIngestor(ctx, cfg.BasicConfig.FileBaseDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	return &Set{Ingestor: ingestor, Answerer: llm, Summarizer: llm}, nil
}
