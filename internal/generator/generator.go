package generator

import "github.com/google/uuid"

// Generator hands out fresh identifiers, one per call to Next.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator names flow instances with random UUIDs.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// ResumeKeyGenerator produces the keys legacy nodes use to match a
// reconnecting client to its players, as "<prefix>-<uuid>".
type ResumeKeyGenerator struct {
	Prefix string
	uuids  UUIDV4Generator
}

func (g *ResumeKeyGenerator) Next() (string, error) {
	id, err := g.uuids.Next()
	if err != nil {
		return "", err
	}
	if g.Prefix == "" {
		return id, nil
	}
	return g.Prefix + "-" + id, nil
}

var _ Generator[string] = &ResumeKeyGenerator{}
