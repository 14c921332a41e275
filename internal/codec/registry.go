package codec

import (
	"fmt"

	"github.com/mkthub/edi/internal/models"
)

// Combination is one supported (document type, format) pair.
type Combination struct {
	DocumentType models.DocumentType
	Format       models.DocumentFormat
}

// Registry resolves the document writer for a (document type, format)
// combination. It is built once at startup with every supported writer, so an
// unsupported combination is caught before message production begins.
type Registry struct {
	writers map[Combination]DocumentWriter
}

// NewRegistry builds the registry with all supported document writers.
func NewRegistry() (*Registry, error) {
	r := &Registry{writers: make(map[Combination]DocumentWriter)}

	all := []DocumentWriter{
		newCIMEnergyResultWriter(),
		newCIMRejectRequestWriter(),
		newCIMWholesaleResultWriter(),
		newEbixEnergyResultWriter(),
		newJSONEnergyResultWriter(),
		newJSONRejectRequestWriter(),
		newJSONWholesaleResultWriter(),
	}
	for _, w := range all {
		if err := r.register(w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(w DocumentWriter) error {
	key := Combination{DocumentType: w.DocumentType(), Format: w.Format()}
	if _, exists := r.writers[key]; exists {
		return fmt.Errorf("writer already registered for %s/%s", key.DocumentType, key.Format)
	}
	r.writers[key] = w
	return nil
}

// Resolve returns the writer for the exact (document type, format) pair.
func (r *Registry) Resolve(docType models.DocumentType, format models.DocumentFormat) (DocumentWriter, error) {
	w, exists := r.writers[Combination{DocumentType: docType, Format: format}]
	if !exists {
		return nil, fmt.Errorf("%s/%s: %w", docType, format, ErrUnsupportedDocument)
	}
	return w, nil
}

// Supported enumerates every registered combination.
func (r *Registry) Supported() []Combination {
	combos := make([]Combination, 0, len(r.writers))
	for key := range r.writers {
		combos = append(combos, key)
	}
	return combos
}
