package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// UserAgent crea un campo para el User-Agent.
func UserAgent(v string) zap.Field {
	return zap.String("user_agent", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - DOMINIO
// =================================================================================

// Issuer crea un campo para el nombre de un issuer.
func Issuer(v string) zap.Field {
	return zap.String("issuer", v)
}

// Nonce crea un campo para el nonce de una validity key.
func Nonce(v int64) zap.Field {
	return zap.Int64("nonce", v)
}

// Sid crea un campo para un session identifier codificado.
func Sid(v string) zap.Field {
	return zap.String("sid", v)
}

// TxKind crea un campo para el tipo de transacción.
func TxKind(v string) zap.Field {
	return zap.String("tx_kind", v)
}

// ConsensusTime crea un campo para el consensus time de un lote (epoch seconds).
func ConsensusTime(v time.Time) zap.Field {
	return zap.Int64("consensus_time", v.Unix())
}

// Participant crea un campo para el índice de un participante.
func Participant(v int) zap.Field {
	return zap.Int("participant", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - CLUSTER
// =================================================================================

// NodeID crea un campo para el ID del nodo raft.
func NodeID(v string) zap.Field {
	return zap.String("node_id", v)
}

// RaftIndex crea un campo para el índice de una entrada del log.
func RaftIndex(v uint64) zap.Field {
	return zap.Uint64("raft_index", v)
}

// Leader crea un campo para la dirección del líder.
func Leader(v string) zap.Field {
	return zap.String("leader", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (handler, service, repository).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// =================================================================================
// CAMPOS ESTÁNDAR - DATOS
// =================================================================================

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Key crea un campo genérico para una clave.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
