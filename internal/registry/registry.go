package registry

import (
	"errors"
	"sync"

	"studyai/internal/models"
)

// ErrDocumentNotFound is returned when an id does not match any listed document.
var ErrDocumentNotFound = errors.New("document not found")

// Registry holds the uploaded documents of one session and the current selection.
// The selection always refers to a listed document.
type Registry struct {
	mu        sync.RWMutex
	documents []*models.Document
	selected  string
}

func New() *Registry {
	return &Registry{}
}

// Add appends a document in upload order. Names are not de-duplicated.
func (r *Registry) Add(doc *models.Document) {
	if doc == nil {
		return
	}
	r.mu.Lock()
	r.documents = append(r.documents, doc)
	r.mu.Unlock()
}

// List returns the documents in insertion order.
func (r *Registry) List() []*models.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Document, len(r.documents))
	copy(out, r.documents)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents)
}

func (r *Registry) Get(id string) (*models.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return r.documents[idx], true
}

// Select marks id as the selected document. An unknown id leaves the selection untouched.
func (r *Registry) Select(id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, ErrDocumentNotFound
	}
	r.selected = id
	return r.documents[idx], nil
}

// ClearSelection drops the selection without touching the list.
func (r *Registry) ClearSelection() {
	r.mu.Lock()
	r.selected = ""
	r.mu.Unlock()
}

// Selected returns the selected document, if any.
func (r *Registry) Selected() (*models.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == "" {
		return nil, false
	}
	idx := r.indexLocked(r.selected)
	if idx < 0 {
		return nil, false
	}
	return r.documents[idx], true
}

// Remove deletes the document with id. When it was selected the selection is
// cleared. It reports whether the selection changed.
func (r *Registry) Remove(id string) (selectionCleared bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return false, ErrDocumentNotFound
	}
	r.documents = append(r.documents[:idx:idx], r.documents[idx+1:]...)
	if r.selected == id {
		r.selected = ""
		return true, nil
	}
	return false, nil
}

func (r *Registry) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, doc := range r.documents {
		if doc.ID == id {
			return i
		}
	}
	return -1
}
