package knowledgebase

// Store exposes knowledge-base retrieval for services and HTTP handlers.
type Store interface {
	List() []KnowledgeBase
	FindByID(id string) (KnowledgeBase, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []KnowledgeBase
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied knowledge bases.
func NewMemoryStore(items []KnowledgeBase) *MemoryStore {
	return &MemoryStore{items: append([]KnowledgeBase(nil), items...)}
}

// List returns every knowledge base.
func (s *MemoryStore) List() []KnowledgeBase {
	return append([]KnowledgeBase(nil), s.items...)
}

// FindByID looks up a knowledge base by identifier.
func (s *MemoryStore) FindByID(id string) (KnowledgeBase, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return KnowledgeBase{}, false
}
