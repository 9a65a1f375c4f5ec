package validity

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Genesis es el documento de génesis del consorcio. Se escribe en JSON con
// comentarios:
//
//	{
//	  // segundos; default 86400
//	  "maxSessionDuration": 86400,
//	  "tokenIssuer": false,
//	  "participants": [
//	    {"nickname": "alpha", "identifier": "node-a"},
//	    {"nickname": "beta", "identifier": "node-b", "tokenIssuer": true},
//	  ]
//	}
type Genesis struct {
	MaxSessionDuration *int64               `json:"maxSessionDuration"`
	TokenIssuer        bool                 `json:"tokenIssuer"`
	Participants       []GenesisParticipant `json:"participants"`
}

// GenesisParticipant describe un peer. TokenIssuer, si está, pisa el valor global.
type GenesisParticipant struct {
	Nickname    string `json:"nickname"`
	Identifier  string `json:"identifier"`
	TokenIssuer *bool  `json:"tokenIssuer,omitempty"`
}

// LoadGenesis lee y valida un archivo de génesis.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %s: %w", path, err)
	}
	return ParseGenesis(raw)
}

// ParseGenesis acepta JSON con comentarios y comas finales.
func ParseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	if err := json.Unmarshal(jsonc.ToJSON(data), &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Genesis) Validate() error {
	if g.MaxSessionDuration != nil && *g.MaxSessionDuration <= 0 {
		return fmt.Errorf("%w: maxSessionDuration must be positive", ErrInvalidGenesis)
	}
	if len(g.Participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidGenesis)
	}
	seen := make(map[string]struct{}, len(g.Participants))
	for i, p := range g.Participants {
		if p.Identifier == "" {
			return fmt.Errorf("%w: participant %d has no identifier", ErrInvalidGenesis, i)
		}
		if _, dup := seen[p.Identifier]; dup {
			return fmt.Errorf("%w: duplicate participant identifier %q", ErrInvalidGenesis, p.Identifier)
		}
		seen[p.Identifier] = struct{}{}
	}
	return nil
}

// Config devuelve la política global con defaults aplicados.
func (g *Genesis) Config() ConstitutionConfig {
	cfg := ConstitutionConfig{MaxSessionDuration: DefaultMaxSessionDuration, TokenIssuer: g.TokenIssuer}
	if g.MaxSessionDuration != nil {
		cfg.MaxSessionDuration = time.Duration(*g.MaxSessionDuration) * time.Second
	}
	return cfg
}

// Peers devuelve los participantes en el orden del documento; ese orden fija
// los índices de participante.
func (g *Genesis) Peers() []PeerInfo {
	out := make([]PeerInfo, 0, len(g.Participants))
	for _, p := range g.Participants {
		out = append(out, PeerInfo{Nickname: p.Nickname, Identifier: []byte(p.Identifier)})
	}
	return out
}

// InitialState construye el estado génesis, aplicando los overrides de tokenIssuer.
func (g *Genesis) InitialState() *State {
	s := CreateInitialState(g.Peers(), g.Config())
	overridden := false
	participants := s.constitution.participants
	for i, p := range g.Participants {
		if p.TokenIssuer != nil && *p.TokenIssuer != participants[i].IsTokenIssuer {
			overridden = true
			break
		}
	}
	if !overridden {
		return s
	}
	cp := s.constitution.Participants()
	for i, p := range g.Participants {
		if p.TokenIssuer != nil {
			cp[i].IsTokenIssuer = *p.TokenIssuer
		}
	}
	return newState(NewConstitution(cp, s.constitution.maxHardExpiryIn))
}
