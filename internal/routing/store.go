package routing

import (
	"context"
	"fmt"

	"avinilabs/internal/jsonstore"
	"avinilabs/pkg/platform/sentinel"
)

// Store is the collection-backed store for routings and their satellite
// documents.
type Store struct {
	routings  jsonstore.Collection
	workflows jsonstore.Collection
	invoices  jsonstore.Collection
	messages  jsonstore.Collection
	files     jsonstore.Collection
}

func NewStore(store jsonstore.Store) *Store {
	return &Store{
		routings:  store.Collection(Collection),
		workflows: store.Collection(WorkflowCollection),
		invoices:  store.Collection(InvoiceCollection),
		messages:  store.Collection(MessageCollection),
		files:     store.Collection(FileCollection),
	}
}

// List returns all routings in collection order.
func (s *Store) List(ctx context.Context) ([]SampleRouting, error) {
	docs, err := s.routings.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonstore.Decode[SampleRouting](docs)
}

// FindByID returns a routing or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id int) (*SampleRouting, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Create appends the routing, assigning the next id and the derived tracking
// number.
func (s *Store) Create(ctx context.Context, r *SampleRouting) error {
	return s.routings.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		r.ID = jsonstore.NextID(docs)
		r.TrackingNumber = fmt.Sprintf("RT%06d", r.ID)
		doc, err := jsonstore.EncodeOne(*r)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// Save replaces the stored routing with the same id.
func (s *Store) Save(ctx context.Context, r *SampleRouting) error {
	return saveByIntID(ctx, s.routings, r.ID, r)
}

// UpdateRouting mutates one routing under the collection write lock, so a
// state check and the transition it guards are atomic. Returns the updated
// routing, or sentinel.ErrNotFound.
func (s *Store) UpdateRouting(ctx context.Context, id int, fn func(r *SampleRouting) error) (*SampleRouting, error) {
	var updated *SampleRouting
	err := s.routings.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			r, err := jsonstore.DecodeOne[SampleRouting](doc)
			if err != nil {
				return nil, err
			}
			if r.ID != id {
				continue
			}
			if err := fn(&r); err != nil {
				return nil, err
			}
			encoded, err := jsonstore.EncodeOne(r)
			if err != nil {
				return nil, err
			}
			docs[i] = encoded
			updated = &r
			return docs, nil
		}
		return nil, sentinel.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Workflow returns a routing's workflow mirror, or sentinel.ErrNotFound.
func (s *Store) Workflow(ctx context.Context, routingID int) (*Workflow, error) {
	docs, err := s.workflows.Read(ctx)
	if err != nil {
		return nil, err
	}
	all, err := jsonstore.Decode[Workflow](docs)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].RoutingID == routingID {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// SaveWorkflow inserts or replaces a routing's workflow mirror.
func (s *Store) SaveWorkflow(ctx context.Context, w *Workflow) error {
	return s.workflows.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[Workflow](doc)
			if err != nil {
				return nil, err
			}
			if existing.RoutingID == w.RoutingID {
				w.ID = existing.ID
				updated, err := jsonstore.EncodeOne(*w)
				if err != nil {
					return nil, err
				}
				docs[i] = updated
				return docs, nil
			}
		}
		w.ID = jsonstore.NextID(docs)
		doc, err := jsonstore.EncodeOne(*w)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// Invoices returns a routing's invoices in collection order; routingID 0
// returns all.
func (s *Store) Invoices(ctx context.Context, routingID int) ([]RoutingInvoice, error) {
	docs, err := s.invoices.Read(ctx)
	if err != nil {
		return nil, err
	}
	all, err := jsonstore.Decode[RoutingInvoice](docs)
	if err != nil {
		return nil, err
	}
	if routingID == 0 {
		return all, nil
	}
	out := make([]RoutingInvoice, 0, len(all))
	for _, inv := range all {
		if inv.RoutingID == routingID {
			out = append(out, inv)
		}
	}
	return out, nil
}

// FindInvoice returns an invoice or sentinel.ErrNotFound.
func (s *Store) FindInvoice(ctx context.Context, id int) (*RoutingInvoice, error) {
	all, err := s.Invoices(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// CreateInvoice appends the invoice, assigning the next id and the per-day
// sequenced invoice number under the collection write lock.
func (s *Store) CreateInvoice(ctx context.Context, inv *RoutingInvoice) error {
	return s.invoices.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		existing, err := jsonstore.Decode[RoutingInvoice](docs)
		if err != nil {
			return nil, err
		}
		day := inv.InvoiceDate.Format("20060102")
		seq := 1
		prefix := "INV-" + day + "-"
		for _, other := range existing {
			var n int
			if _, err := fmt.Sscanf(other.InvoiceNumber, prefix+"%04d", &n); err == nil && n >= seq {
				seq = n + 1
			}
		}
		inv.ID = jsonstore.NextID(docs)
		inv.InvoiceNumber = fmt.Sprintf("%s%04d", prefix, seq)
		doc, err := jsonstore.EncodeOne(*inv)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// SaveInvoice replaces the stored invoice with the same id.
func (s *Store) SaveInvoice(ctx context.Context, inv *RoutingInvoice) error {
	return saveByIntID(ctx, s.invoices, inv.ID, inv)
}

// DeleteInvoice removes an invoice.
func (s *Store) DeleteInvoice(ctx context.Context, id int) error {
	return s.invoices.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[RoutingInvoice](doc)
			if err != nil {
				return nil, err
			}
			if existing.ID == id {
				return append(docs[:i], docs[i+1:]...), nil
			}
		}
		return nil, sentinel.ErrNotFound
	})
}

// Messages returns a routing's messages in creation order.
func (s *Store) Messages(ctx context.Context, routingID int) ([]RoutingMessage, error) {
	docs, err := s.messages.Read(ctx)
	if err != nil {
		return nil, err
	}
	all, err := jsonstore.Decode[RoutingMessage](docs)
	if err != nil {
		return nil, err
	}
	out := make([]RoutingMessage, 0, len(all))
	for _, m := range all {
		if m.RoutingID == routingID {
			out = append(out, m)
		}
	}
	return out, nil
}

// AppendMessage persists a chat message.
func (s *Store) AppendMessage(ctx context.Context, m *RoutingMessage) error {
	return s.messages.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		doc, err := jsonstore.EncodeOne(*m)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// MarkMessageRead flags a message read; idempotent.
func (s *Store) MarkMessageRead(ctx context.Context, id string, fn func(m *RoutingMessage) error) (*RoutingMessage, error) {
	var updated *RoutingMessage
	err := s.messages.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			m, err := jsonstore.DecodeOne[RoutingMessage](doc)
			if err != nil {
				return nil, err
			}
			if m.ID != id {
				continue
			}
			if err := fn(&m); err != nil {
				return nil, err
			}
			encoded, err := jsonstore.EncodeOne(m)
			if err != nil {
				return nil, err
			}
			docs[i] = encoded
			updated = &m
			return docs, nil
		}
		return nil, sentinel.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Files returns a routing's attachments in creation order.
func (s *Store) Files(ctx context.Context, routingID int) ([]RoutingFile, error) {
	docs, err := s.files.Read(ctx)
	if err != nil {
		return nil, err
	}
	all, err := jsonstore.Decode[RoutingFile](docs)
	if err != nil {
		return nil, err
	}
	out := make([]RoutingFile, 0, len(all))
	for _, f := range all {
		if f.RoutingID == routingID {
			out = append(out, f)
		}
	}
	return out, nil
}

// FindFile returns a file or sentinel.ErrNotFound.
func (s *Store) FindFile(ctx context.Context, id string) (*RoutingFile, error) {
	docs, err := s.files.Read(ctx)
	if err != nil {
		return nil, err
	}
	all, err := jsonstore.Decode[RoutingFile](docs)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// AppendFile persists an attachment.
func (s *Store) AppendFile(ctx context.Context, f *RoutingFile) error {
	return s.files.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		doc, err := jsonstore.EncodeOne(*f)
		if err != nil {
			return nil, err
		}
		return append(docs, doc), nil
	})
}

// DeleteFile removes an attachment.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.files.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, err := jsonstore.DecodeOne[RoutingFile](doc)
			if err != nil {
				return nil, err
			}
			if existing.ID == id {
				return append(docs[:i], docs[i+1:]...), nil
			}
		}
		return nil, sentinel.ErrNotFound
	})
}

// saveByIntID replaces the document whose id matches, generically for the
// int-keyed collections.
func saveByIntID[T any](ctx context.Context, coll jsonstore.Collection, id int, value *T) error {
	return coll.Update(ctx, func(docs []jsonstore.Document) ([]jsonstore.Document, error) {
		for i, doc := range docs {
			existing, ok := doc["id"]
			if !ok {
				continue
			}
			if n, isNum := asIntValue(existing); isNum && n == id {
				updated, err := jsonstore.EncodeOne(*value)
				if err != nil {
					return nil, err
				}
				docs[i] = updated
				return docs, nil
			}
		}
		return nil, sentinel.ErrNotFound
	})
}

func asIntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
