package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates a detail lookup matched no row.
var ErrNotFound = errors.New("not found")

// learnKeys are the pokemon_moves columns carried alongside a joined row.
var learnKeys = [...]string{"learn_method", "level", "tm_no"}

// LearnedMove is one entry of a pokemon's learnset.
type LearnedMove struct {
	LearnMethod any `json:"learn_method"`
	Level       any `json:"level"`
	TMNo        any `json:"tm_no"`
	Move        Row `json:"move"`
}

// PokemonDetail is a pokemon row plus its full learnset.
type PokemonDetail struct {
	Pokemon Row           `json:"pokemon"`
	Moves   []LearnedMove `json:"moves"`
}

// MoveLearner is one pokemon that learns a move, with how it learns it.
type MoveLearner struct {
	LearnMethod any `json:"learn_method"`
	Level       any `json:"level"`
	TMNo        any `json:"tm_no"`
	Pokemon     Row `json:"pokemon"`
}

// MoveDetail is a move row plus every pokemon that learns it.
type MoveDetail struct {
	Move     Row           `json:"move"`
	Pokemons []MoveLearner `json:"pokemons"`
}

// GetPokemon looks up one pokemon by id (when id > 0) or by exact name and
// returns it together with its learnset ordered by move name.
func (s *Store) GetPokemon(ctx context.Context, id int64, name string) (*PokemonDetail, error) {
	pokemon, err := s.lookupRow(ctx, "pokemons", id, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.Query(ctx, `
		SELECT pm.learn_method, pm.level, pm.tm_no, m.*
		FROM pokemon_moves pm
		JOIN moves m ON m.id = pm.move_id
		WHERE pm.pokemon_id = ?
		ORDER BY m.name ASC
	`, pokemon["id"])
	if err != nil {
		return nil, err
	}

	detail := &PokemonDetail{Pokemon: pokemon, Moves: make([]LearnedMove, 0, len(rows))}
	for _, r := range rows {
		learn, rest := splitLearnColumns(r)
		detail.Moves = append(detail.Moves, LearnedMove{
			LearnMethod: learn["learn_method"],
			Level:       learn["level"],
			TMNo:        learn["tm_no"],
			Move:        rest,
		})
	}
	return detail, nil
}

// GetMove looks up one move by id (when id > 0) or by exact name and
// returns it together with the pokemon that learn it, ordered by name.
func (s *Store) GetMove(ctx context.Context, id int64, name string) (*MoveDetail, error) {
	move, err := s.lookupRow(ctx, "moves", id, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.Query(ctx, `
		SELECT pm.learn_method, pm.level, pm.tm_no, p.*
		FROM pokemon_moves pm
		JOIN pokemons p ON p.id = pm.pokemon_id
		WHERE pm.move_id = ?
		ORDER BY p.name ASC
	`, move["id"])
	if err != nil {
		return nil, err
	}

	detail := &MoveDetail{Move: move, Pokemons: make([]MoveLearner, 0, len(rows))}
	for _, r := range rows {
		learn, rest := splitLearnColumns(r)
		detail.Pokemons = append(detail.Pokemons, MoveLearner{
			LearnMethod: learn["learn_method"],
			Level:       learn["level"],
			TMNo:        learn["tm_no"],
			Pokemon:     rest,
		})
	}
	return detail, nil
}

func (s *Store) lookupRow(ctx context.Context, table string, id int64, name string) (Row, error) {
	var (
		rows []Row
		err  error
	)
	switch {
	case id > 0:
		rows, err = s.Query(ctx, "SELECT * FROM "+table+" WHERE id = ?", id)
	case name != "":
		rows, err = s.Query(ctx, "SELECT * FROM "+table+" WHERE name = ?", name)
	default:
		return nil, errors.New("either id or name is required")
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func splitLearnColumns(r Row) (learn Row, rest Row) {
	learn = make(Row, len(learnKeys))
	rest = make(Row, len(r))
	for k, v := range r {
		rest[k] = v
	}
	for _, k := range learnKeys {
		learn[k] = r[k]
		delete(rest, k)
	}
	return learn, rest
}
