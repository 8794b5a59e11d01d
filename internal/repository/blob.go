package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Ryuzii/FerraEura/internal/datalayer"
	"github.com/Ryuzii/FerraEura/internal/session"
)

// BlobStateStore writes the map as one JSON object into blob storage.
type BlobStateStore struct {
	storage datalayer.BlobStorage
	key     string
}

func NewBlobStateStore(storage datalayer.BlobStorage, key string) *BlobStateStore {
	if key == "" {
		key = "sessions/state.json"
	}
	return &BlobStateStore{storage: storage, key: key}
}

var _ StateStore = (*BlobStateStore)(nil)

func (s *BlobStateStore) Save(ctx context.Context, states map[string]session.State) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("failed to encode session states: %w", err)
	}
	err = s.storage.Put(ctx, s.key, bytes.NewReader(data), datalayer.PutOptions{
		Size:        int64(len(data)),
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload session states: %w", err)
	}
	return nil
}

func (s *BlobStateStore) Load(ctx context.Context) (map[string]session.State, error) {
	body, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, datalayer.ErrBlobNotFound) {
		return map[string]session.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download session states: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read session states: %w", err)
	}
	return decodeStates(data)
}
