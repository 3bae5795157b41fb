package log

// Supported console formats.
const (
	FormatPattern  = "pattern"
	FormatPrefixed = "prefixed"
	FormatJSON     = "json"
)

type LoggerConfig struct {
	Level   string          `mapstructure:"level" yaml:"level"`
	Format  string          `mapstructure:"format" yaml:"format"`
	Pattern string          `mapstructure:"pattern" yaml:"pattern"`
	Time    string          `mapstructure:"time" yaml:"time"`
	File    FileAppenderOpt `mapstructure:"file" yaml:"file"`
}

// DefaultConfig logs at info level to stdout only.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:   "info",
		Format:  FormatPattern,
		Pattern: "%time [%level] %field %msg%n",
		Time:    "2006-01-02 15:04:05.000",
	}
}
