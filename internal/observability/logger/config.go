package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultServiceName es el valor del campo "service" si Config no fija otro.
const DefaultServiceName = "dtvad"

// Config configura el logger.
type Config struct {
	// Env: "dev" (consola con colores) o "prod" (JSON). Default: "dev".
	Env string

	// Level: "debug", "info", "warn", "error". Default: "info".
	Level string

	// ServiceName va en cada línea como "service". Default: DefaultServiceName.
	ServiceName string

	// Version del binario. Opcional.
	Version string

	// NodeID es la identidad raft del nodo; en un cluster los logs de todas las
	// réplicas terminan juntos y este campo los separa. Opcional.
	NodeID string
}

func (c Config) prod() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "prod")
}

// baseFields son los campos que lleva toda línea del proceso.
func (c Config) baseFields() []zap.Field {
	service := strings.TrimSpace(c.ServiceName)
	if service == "" {
		service = DefaultServiceName
	}
	fields := []zap.Field{zap.String("service", service)}
	if c.Version != "" {
		fields = append(fields, zap.String("version", c.Version))
	}
	if c.NodeID != "" {
		fields = append(fields, NodeID(c.NodeID))
	}
	return fields
}

// zapConfig arma la configuración de zap para el entorno.
func (c Config) zapConfig() zap.Config {
	var zcfg zap.Config
	if c.prod() {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		// en dev el stacktrace de warn tapa el mensaje
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(c.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zcfg
}

// build construye el logger según la configuración.
func build(cfg Config) *zap.Logger {
	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.Fields(cfg.baseFields()...),
	}
	if cfg.prod() {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	l, err := cfg.zapConfig().Build(opts...)
	if err != nil {
		// Fallback a un logger básico si falla
		l, _ = zap.NewProduction(zap.Fields(cfg.baseFields()...))
	}
	return l
}

// parseLevel convierte un string a zapcore.Level; lo desconocido es info.
func parseLevel(lvl string) zapcore.Level {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	l, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return l
}
