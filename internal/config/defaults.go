package config

// DefaultDBPath is where the knowledge base lives on a workstation or server.
// ServerlessDBPath replaces it on Lambda and Cloud Functions, where only /tmp
// is writable.
const (
	DefaultDBPath    = "~/.kbbot/knowledge.db"
	ServerlessDBPath = "/tmp/kbbot/knowledge.db"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Slack: SlackConfig{
			VerifyTokenOnStart: true,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Path: "/slack/events",
		},
		Lookup: LookupConfig{
			Backend: BackendKnowledge,
			Bedrock: BedrockConfig{
				ModelID:   "anthropic.claude-3-haiku-20240307-v1:0",
				MaxTokens: 512,
			},
		},
		Knowledge: KnowledgeConfig{
			DBPath:       DefaultDBPath,
			ChunkSize:    200,
			ChunkOverlap: 20,
			SearchTopK:   3,
			NoAnswer:     "Sorry, I couldn't find anything about that.",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
