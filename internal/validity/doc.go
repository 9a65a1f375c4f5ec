// Package validity implementa la máquina de estados replicada que lleva la
// validez de tokens de sesión.
//
// Cada participante aplica el mismo log ordenado de transacciones con Apply y
// obtiene el mismo State. El tiempo que entra a la transición es siempre el
// consensus time del lote, nunca el reloj local; las consultas (View, StateView)
// sí se evalúan en un instante arbitrario.
//
// Una clave pasa por active -> expired o active -> invalidated, y se destruye
// (desaparece) al llegar a su hard expiry. Los snapshots son inmutables y
// comparten estructura entre versiones, así que los lectores no necesitan locks.
package validity
