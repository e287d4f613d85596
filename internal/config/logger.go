package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// defaultLoggerName names the importer's root logger when the file leaves it out.
const defaultLoggerName = "geoimport"

// Logging is the logger section. Env "production" selects JSON output with
// sampling at info level; anything else logs console text at debug level. Explicit
// zap settings in the file win over both.
type Logging struct {
	Env        string `yaml:"env"`
	Name       string `yaml:"name"`
	zap.Config `yaml:",inline"`
}

func (l *Logging) production() bool { return l.Env == "production" }

func (l *Logging) level() zap.AtomicLevel {
	if l.Level != (zap.AtomicLevel{}) {
		return l.Level
	}
	if l.production() {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return zap.NewAtomicLevelAt(zapcore.DebugLevel)
}

func (l *Logging) encoder() (string, zapcore.EncoderConfig) {
	enc, cfg := "console", zap.NewDevelopmentEncoderConfig()
	if l.production() {
		enc, cfg = "json", zap.NewProductionEncoderConfig()
	}
	if l.Encoding != "" {
		enc = l.Encoding
	}
	return enc, cfg
}

// BuildLogger builds the importer's root logger from the logger section, filling in
// whatever the file left unset.
func (c *Config) BuildLogger(opts ...zap.Option) (*zap.Logger, error) {
	l := &c.Logger
	l.Level = l.level()
	l.Encoding, l.EncoderConfig = l.encoder()
	if l.production() && l.Sampling == nil {
		l.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}
	if len(l.OutputPaths) == 0 {
		l.OutputPaths = []string{"stderr"}
	}
	if len(l.ErrorOutputPaths) == 0 {
		l.ErrorOutputPaths = []string{"stderr"}
	}
	if l.Name == "" {
		l.Name = defaultLoggerName
	}
	logger, err := l.Build(opts...)
	if err != nil {
		return nil, err
	}
	return logger.Named(l.Name), nil
}
