package coordinator

import (
	"time"

	appmetrics "github.com/dropDatabas3/dtva/internal/metrics"
	"github.com/dropDatabas3/dtva/internal/validity"
	gocache "github.com/patrickmn/go-cache"
)

// Debouncer deja pasar a lo sumo un envío de interactividad por clave dentro
// de la ventana configurada.
type Debouncer struct {
	window time.Duration
	c      *gocache.Cache
}

// NewDebouncer crea un debouncer. Con window <= 0 todo pasa.
func NewDebouncer(window time.Duration) *Debouncer {
	d := &Debouncer{window: window}
	if window > 0 {
		d.c = gocache.New(window, 2*window)
	}
	return d
}

// Allow devuelve true si la clave no fue vista dentro de la ventana y la marca.
func (d *Debouncer) Allow(k validity.ValidityKey) bool {
	if d == nil || d.c == nil {
		return true
	}
	// Add es atómico: falla si la entrada existe y no expiró
	if err := d.c.Add(k.String(), struct{}{}, d.window); err != nil {
		appmetrics.InteractivityDebounced.Inc()
		return false
	}
	return true
}

// Forget quita la marca de una clave (p.ej. si el envío falló).
func (d *Debouncer) Forget(k validity.ValidityKey) {
	if d == nil || d.c == nil {
		return
	}
	d.c.Delete(k.String())
}
