package dedup

import (
	"context"
)

type mappingDoc struct {
	Order []string       `json:"order"`
	IDs   map[string]int `json:"ids"`
}

// FileMapper stores the source-to-published message mapping as a JSON document
// with the same locking and retention rules as FileStore.
type FileMapper struct {
	file      *jsonFile
	retention int
}

// NewFileMapper opens the mapping table at path.
func NewFileMapper(path string, retention int) (*FileMapper, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	f, err := newJSONFile(path)
	if err != nil {
		return nil, &StoreError{Backend: "file", Op: "open", Err: err}
	}
	return &FileMapper{file: f, retention: retention}, nil
}

func (m *FileMapper) Put(ctx context.Context, sourceKey string, publishedID int) error {
	var doc mappingDoc
	err := m.file.update(ctx, &doc, func() (bool, error) {
		if doc.IDs == nil {
			doc.IDs = make(map[string]int)
		}
		if _, ok := doc.IDs[sourceKey]; !ok {
			doc.Order = append(doc.Order, sourceKey)
		}
		doc.IDs[sourceKey] = publishedID
		if len(doc.Order) > m.retention {
			for _, old := range doc.Order[:len(doc.Order)-m.retention] {
				delete(doc.IDs, old)
			}
			doc.Order = trimOldest(doc.Order, m.retention)
		}
		return true, nil
	})
	if err != nil {
		return &StoreError{Backend: "file", Op: "map", Err: err}
	}
	return nil
}

func (m *FileMapper) Get(ctx context.Context, sourceKey string) (int, bool, error) {
	var doc mappingDoc
	var (
		id int
		ok bool
	)
	err := m.file.view(ctx, &doc, func() {
		id, ok = doc.IDs[sourceKey]
	})
	if err != nil {
		return 0, false, &StoreError{Backend: "file", Op: "lookup", Err: err}
	}
	return id, ok, nil
}
