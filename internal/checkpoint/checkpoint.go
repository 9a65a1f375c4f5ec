// Package checkpoint exporta el estado replicado a un archivo fuera de raft.
// El formato es el mismo que el de los snapshots de la FSM (comprimido con
// zstd), por lo que un checkpoint sirve para inspeccionar una réplica o para
// auditar que dos nodos tienen el mismo estado.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dropDatabas3/dtva/internal/cluster"
	"github.com/dropDatabas3/dtva/internal/codec"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	"github.com/dropDatabas3/dtva/internal/util/atomicwrite"
	"github.com/dropDatabas3/dtva/internal/validity"
)

const filePerm = 0o600

// Export escribe s de forma atómica.
func Export(path string, s *validity.State, lastConsensus time.Time) error {
	if s == nil {
		return errors.New("checkpoint: nil state")
	}
	var secs int64
	if !lastConsensus.IsZero() {
		secs = lastConsensus.Unix()
	}
	raw, err := cluster.EncodeSnapshot(s, secs, true)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := atomicwrite.WriteFile(path, raw, filePerm); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Read decodifica un checkpoint. Acepta también snapshots sin comprimir.
func Read(path string) (*validity.State, time.Time, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	s, secs, err := cluster.DecodeSnapshot(raw)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	var last time.Time
	if secs != 0 {
		last = time.Unix(secs, 0).UTC()
	}
	return s, last, nil
}

// Info es el resumen de un checkpoint.
type Info struct {
	Path            string
	Size            int
	Compressed      bool
	LastConsensus   time.Time
	Participants    int
	MaxHardExpiryIn time.Duration
	Issuers         []validity.Issuer
	Keys            int
	Active          int
	Expired         int
	Invalidated     int
	Digest          validity.Digest
}

// Inspect lee path y cuenta las claves según su vista en now.
func Inspect(path string, now time.Time) (Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	s, secs, err := cluster.DecodeSnapshot(raw)
	if err != nil {
		return Info{}, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	digest, err := validity.DigestState(s)
	if err != nil {
		return Info{}, err
	}

	cons := s.Constitution()
	info := Info{
		Path:            path,
		Size:            len(raw),
		Compressed:      codec.IsCompressed(raw),
		Participants:    len(cons.Participants()),
		MaxHardExpiryIn: cons.MaxHardExpiryIn(),
		Issuers:         s.Issuers(),
		Keys:            s.KeyCount(),
		Digest:          digest,
	}
	if secs != 0 {
		info.LastConsensus = time.Unix(secs, 0).UTC()
	}
	for v := range s.ViewValidityKeys(now) {
		switch {
		case v.IsInvalidated():
			info.Invalidated++
		case v.IsExpired():
			info.Expired++
		default:
			info.Active++
		}
	}
	return info, nil
}

// Source es lo que Run necesita de la réplica. Published devuelve el estado
// junto al consensus time que lo produjo.
type Source interface {
	Published() (*validity.State, time.Time)
}

// Run exporta src a path cada interval mientras ctx siga vivo, y una última
// vez al terminar. Solo escribe si el snapshot cambió desde el último export.
func Run(ctx context.Context, path string, interval time.Duration, src Source) error {
	if path == "" {
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("checkpoint: invalid interval %s", interval)
	}
	log := logger.Named("checkpoint").With(logger.String("path", path))

	var last *validity.State
	export := func() {
		s, consensus := src.Published()
		if s == nil || s == last {
			return
		}
		start := time.Now()
		if err := Export(path, s, consensus); err != nil {
			log.Error("checkpoint export failed", logger.Err(err))
			return
		}
		last = s
		log.Debug("checkpoint exported", logger.Count(s.KeyCount()), logger.Duration(time.Since(start)))
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			export()
			return nil
		case <-t.C:
			export()
		}
	}
}
