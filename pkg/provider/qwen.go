package provider

const (
	// Qwen Omni exposes an OpenAI-compatible realtime endpoint.
	qwenRealtimeURL = "wss://dashscope.aliyuncs.com/api-ws/v1/realtime"
	qwenModel       = "qwen-omni-turbo-realtime"
)

// Qwen implements Adapter using Alibaba's Qwen Omni realtime API.
// The wire grammar is OpenAI-compatible, so the session core is shared.
type Qwen struct {
	*OpenAI
}

// NewQwen creates a new Qwen Omni realtime adapter.
func NewQwen(cfg Config) (*Qwen, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Qwen{
		OpenAI: &OpenAI{
			config:       cfg,
			tag:          TagQwen,
			baseURL:      qwenRealtimeURL,
			defaultModel: qwenModel,
			readyCh:      make(chan struct{}),
		},
	}, nil
}

// Ensure Qwen implements Adapter at compile time.
var _ Adapter = (*Qwen)(nil)

func init() {
	Register(TagQwen, func(cfg Config) (Adapter, error) {
		return NewQwen(cfg)
	})
}
