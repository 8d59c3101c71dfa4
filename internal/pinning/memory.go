package pinning

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/TemirB/musicnft/internal/domain"
)

type object struct {
	contentType string
	body        []byte
}

// Memory is an in-process content-addressed store. CIDs are CIDv1 raw sha2-256,
// so identical bytes always map to the same CID.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

func (m *Memory) PinFile(_ context.Context, f File) (string, error) {
	body, err := io.ReadAll(f.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read upload: %v", domain.ErrUpstream, err)
	}
	ct := f.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(body)
	}
	return m.put(body, ct)
}

func (m *Memory) PinJSON(_ context.Context, _ string, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: encode json: %v", domain.ErrValidation, err)
	}
	return m.put(body, "application/json")
}

// Get returns pinned bytes and their content type.
func (m *Memory) Get(id string) ([]byte, string, bool) {
	key, err := cid.Decode(id)
	if err != nil {
		return nil, "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key.String()]
	return obj.body, obj.contentType, ok
}

func (m *Memory) put(body []byte, contentType string) (string, error) {
	sum, err := multihash.Sum(body, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	id := cid.NewCidV1(cid.Raw, sum).String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		m.objects[id] = object{contentType: contentType, body: body}
	}
	return id, nil
}
