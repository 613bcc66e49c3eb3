package records

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/dataset"
	"github.com/skretail/console/pkg/errcodes"
)

const msgNothingSelected = "No items selected for export."

// exportHidden columns never appear in exported CSVs.
var exportHidden = map[string]struct{}{
	"barcode": {},
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type ListOptions struct {
	Search string
	Limit  int
	Offset int
}

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// fetch returns every record of the entity as the backend stores it.
func (svc *Service) fetch(ctx context.Context, client apiclient.Requester, e *Entity) ([]*dataset.Record, error) {
	var raw []byte
	if err := client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: e.ListPath}, &raw); err != nil {
		return nil, err
	}
	recs, err := dataset.Decode(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "unreadable %s list", e.Name)
	}
	return recs, nil
}

// List filters the entity by opts.Search, sorts it newest first by
// updated_at and returns one page along with the filtered total.
func (svc *Service) List(ctx context.Context, client apiclient.Requester, e *Entity, opts ListOptions) ([]*dataset.Record, int, error) {
	all, err := svc.fetch(ctx, client, e)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*dataset.Record, 0, len(all))
	for _, r := range all {
		if e.Matches(r, opts.Search) {
			matched = append(matched, r)
		}
	}
	SortByUpdated(matched)

	total := len(matched)
	start := min(max(opts.Offset, 0), total)
	end := total
	if opts.Limit > 0 {
		end = min(start+opts.Limit, total)
	}

	logger.FromContext(ctx).Debug("listed records", logger.Data{"entity": e.Name, "total": total, "search": opts.Search})
	return matched[start:end], total, nil
}

// SortByUpdated orders records by updated_at, newest first. Records without
// a readable timestamp keep their order after the dated ones.
func SortByUpdated(recs []*dataset.Record) {
	type keyed struct {
		at time.Time
		ok bool
	}
	keys := make(map[*dataset.Record]keyed, len(recs))
	for _, r := range recs {
		at, ok := parseTimestamp(r.String("updated_at"))
		keys[r] = keyed{at, ok}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := keys[recs[i]], keys[recs[j]]
		if a.ok != b.ok {
			return a.ok
		}
		return a.at.After(b.at)
	})
}

// Retrieve looks one record up by id. The backend answers with a list.
func (svc *Service) Retrieve(ctx context.Context, client apiclient.Requester, e *Entity, id string) (*dataset.Record, error) {
	if !e.Lookup {
		return nil, errcodes.NotFound("Record")
	}
	var raw []byte
	err := client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/" + e.Name + "/get-data-by-id",
		Query:  url.Values{"id": {id}},
	}, &raw)
	if err != nil {
		if apiclient.StatusCode(err) == http.StatusNotFound {
			return nil, errcodes.NotFound("Record")
		}
		return nil, err
	}
	recs, err := dataset.Decode(raw)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(recs) == 0 {
		return nil, errcodes.NotFound("Record")
	}
	return recs[0], nil
}

// Delete removes the record addressed by code: the corporate code for
// products, the id for label data.
func (svc *Service) Delete(ctx context.Context, client apiclient.Requester, e *Entity, code string) error {
	if !e.Lookup {
		return errcodes.NotFound("Record")
	}
	err := client.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: e.itemPath(code)}, nil)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("record deleted", logger.Data{"entity": e.Name, "code": code})
	return nil
}

type ProductUpdate struct {
	SKUCode  string `json:"skucode"`
	ImageURL string `json:"imageurl"`
}

// UpdateProduct changes a product's SKU code and image and returns the
// record the backend sends back.
func (svc *Service) UpdateProduct(ctx context.Context, client apiclient.Requester, code string, upd ProductUpdate) (*dataset.Record, error) {
	rec := dataset.NewRecord()
	err := client.Do(ctx, apiclient.Request{
		Method: http.MethodPut,
		Path:   "/products/update/" + url.PathEscape(code),
		Body:   upd,
	}, rec)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("product updated", logger.Data{"code": code})
	return rec, nil
}

// Export writes the selected records of the entity as CSV.
func (svc *Service) Export(ctx context.Context, client apiclient.Requester, e *Entity, selected []string, w io.Writer) error {
	if len(selected) == 0 {
		return errcodes.ValidationError(msgNothingSelected)
	}
	all, err := svc.fetch(ctx, client, e)
	if err != nil {
		return err
	}
	return ExportCSV(w, e, all, selected)
}

// ExportCSV writes the records whose selection key is in selected, in list
// order. Columns are the union of their keys without barcode.
func ExportCSV(w io.Writer, e *Entity, recs []*dataset.Record, selected []string) error {
	if len(selected) == 0 {
		return errcodes.ValidationError(msgNothingSelected)
	}
	want := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		want[s] = struct{}{}
	}

	header := &dataset.HeaderSet{}
	picked := []*dataset.Record{}
	for _, r := range recs {
		if _, ok := want[e.SelectionKey(r)]; !ok {
			continue
		}
		picked = append(picked, r)
		for _, k := range r.Keys() {
			if _, hidden := exportHidden[k]; !hidden {
				header.Add(k)
			}
		}
	}
	if len(picked) == 0 {
		return errcodes.ValidationError(msgNothingSelected)
	}
	return dataset.WriteCSV(w, header.Names(), picked)
}
