package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/media"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

// MaxImages caps the photos attached to one request.
const MaxImages = 6

// Image is an uploaded photo awaiting storage.
type Image struct {
	Data        []byte `json:"data"         validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
}

// LocationInput is an optional request location. Both coordinates must be
// given together.
type LocationInput struct {
	Latitude  *float64 `json:"latitude"  validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Address   string   `json:"address"   validate:"max=255"`
}

// CreateRequestInput is the customer-supplied part of a new request.
type CreateRequestInput struct {
	Category    string          `json:"category"`
	Title       string          `json:"title"       validate:"required,max=120"`
	Description string          `json:"description" validate:"max=2000"`
	Details     json.RawMessage `json:"details"`
	Images      []Image         `json:"images"      validate:"max=6,dive"`
	Location    *LocationInput  `json:"location"`
}

// CreateRequest posts a new service request for the session customer.
//
// Semantics:
//   - The category is normalized (unknown values become "other") and the
//     details payload is decoded into that category's variant. A details
//     kind that disagrees with the category is a ValidationError.
//   - All images are uploaded before anything is written. When any upload
//     fails, the ones that succeeded are deleted best effort and a single
//     error listing every failure is returned; no request row exists.
//   - The request is inserted as "open" together with a request.created
//     outbox row, then indexed for text search.
func (l *Lifecycle) CreateRequest(ctx context.Context, s Session, in CreateRequestInput) (_ *domain.ServiceRequest, err error) {
	const op = "CreateRequest"
	ctx, span := l.start(ctx, op,
		attribute.String("user.id", s.UserID),
		attribute.Int("images", len(in.Images)),
	)
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleCustomer); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	category := domain.ParseCategory(in.Category)

	var problems []error
	problems = append(problems, fieldErrors(in)...)
	if loc := in.Location; loc != nil && (loc.Latitude == nil) != (loc.Longitude == nil) {
		problems = append(problems, errors.New("location: latitude and longitude must be given together"))
	}
	details, derr := domain.DecodeDetails(category, in.Details)
	switch {
	case errors.Is(derr, domain.ErrDetailsKindMismatch):
		problems = append(problems, fmt.Errorf("details: kind does not match category %q", category))
	case derr != nil:
		problems = append(problems, fmt.Errorf("details: %v", derr))
	default:
		for _, fe := range fieldErrors(details.Variant) {
			problems = append(problems, fmt.Errorf("details.%w", fe))
		}
	}
	if len(problems) > 0 {
		return nil, invalidAll(op, problems)
	}

	urls, err := l.uploadAll(ctx, op, in.Images)
	if err != nil {
		return nil, err
	}

	r := &domain.ServiceRequest{
		CustomerID:  s.UserID,
		Category:    category,
		Title:       in.Title,
		Description: in.Description,
		Details:     details,
		Images:      urls,
	}
	if in.Location != nil {
		r.Location = domain.GeoPoint{
			Latitude:  in.Location.Latitude,
			Longitude: in.Location.Longitude,
			Address:   strings.TrimSpace(in.Location.Address),
		}
	}
	if r.Images == nil {
		r.Images = []string{}
	}

	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateRequest(ctx, tx, r); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, tx, aggregateRequest, r.ID, domain.EventRequestCreated, map[string]any{
			"request_id":  r.ID,
			"customer_id": r.CustomerID,
			"category":    r.Category,
		})
	})
	if err != nil {
		l.discard(ctx, urls)
		return nil, storeErr(op, "request", err)
	}

	if l.Index != nil {
		l.Index.Put(r.ID, r.Title, r.Description, string(r.Category))
	}
	return r, nil
}

// uploadAll stores images in order. Every failure is collected; on any
// failure the successful uploads are removed again.
func (l *Lifecycle) uploadAll(ctx context.Context, op string, images []Image) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	if l.Media == nil {
		return nil, newErr(KindTransport, op, "media store not configured", nil)
	}
	urls := make([]string, 0, len(images))
	var failures []error
	transport := false
	for i, img := range images {
		url, err := l.Media.Upload(ctx, img.Data, img.ContentType)
		if err != nil {
			failures = append(failures, fmt.Errorf("image %d: %w", i+1, err))
			if !isMediaInputError(err) {
				transport = true
			}
			continue
		}
		urls = append(urls, url)
	}
	if len(failures) == 0 {
		return urls, nil
	}
	l.discard(ctx, urls)

	cause := errors.Join(failures...)
	msgs := make([]string, len(failures))
	for i, f := range failures {
		msgs[i] = f.Error()
	}
	kind := KindValidation
	if transport {
		kind = KindTransport
	}
	return nil, newErr(kind, op, "image upload failed: "+strings.Join(msgs, "; "), cause)
}

func isMediaInputError(err error) bool {
	return errors.Is(err, media.ErrUnsupportedType) ||
		errors.Is(err, media.ErrTooLarge) ||
		errors.Is(err, media.ErrEmpty)
}

// discard deletes uploaded objects best effort.
func (l *Lifecycle) discard(ctx context.Context, urls []string) {
	ctx = context.WithoutCancel(ctx)
	for _, u := range urls {
		if err := l.Media.Delete(ctx, u); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("url", u).Msg("delete orphaned upload")
		}
	}
}

// Reindex rebuilds the search index from every request that still accepts
// offers. It runs at startup.
func (l *Lifecycle) Reindex(ctx context.Context) (int, error) {
	if l.Index == nil {
		return 0, nil
	}
	rows, err := repo.ListRequests(ctx, l.DB, repo.RequestFilter{
		Statuses: []domain.RequestStatus{domain.RequestOpen, domain.RequestOffered},
	}, 0, 0)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		l.Index.Put(r.ID, r.Title, r.Description, string(r.Category))
	}
	return len(rows), nil
}

// OpenRequestsFilter narrows ListOpenRequests.
type OpenRequestsFilter struct {
	Category string
	// Near restricts results to RadiusKm around (Latitude, Longitude).
	// Requests without a location are kept.
	Near *Near
	// Query ranks results by text relevance instead of recency.
	Query    string
	Page     int
	PageSize int
}

// Near is a search circle.
type Near struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
	RadiusKm  float64 `validate:"gt=0,lte=20000"`
}

// RequestView is a request with optional search annotations.
type RequestView struct {
	domain.ServiceRequest
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// ListOpenRequests returns requests that still accept offers, newest first,
// or by relevance when f.Query is set. It returns the page and the total
// number of matches.
func (l *Lifecycle) ListOpenRequests(ctx context.Context, s Session, f OpenRequestsFilter) (_ []RequestView, _ int, err error) {
	const op = "ListOpenRequests"
	ctx, span := l.start(ctx, op,
		attribute.String("user.id", s.UserID),
		attribute.String("category", f.Category),
		attribute.String("query", f.Query),
	)
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, 0, err
	}
	if f.Near != nil {
		if err := validateInput(op, f.Near); err != nil {
			return nil, 0, err
		}
	}
	pg := utils.Page{Number: f.Page, Size: f.PageSize}.Clamp()

	rf := repo.RequestFilter{Statuses: []domain.RequestStatus{domain.RequestOpen, domain.RequestOffered}}
	if strings.TrimSpace(f.Category) != "" {
		rf.Category = domain.ParseCategory(f.Category)
	}
	scores := map[string]float64{}
	if q := strings.TrimSpace(f.Query); q != "" {
		rf.IDs = []string{}
		if l.Index != nil {
			for _, r := range l.Index.TopK(q, 0) {
				rf.IDs = append(rf.IDs, r.ID)
				scores[r.ID] = r.Score
			}
		}
	}

	var rows []domain.ServiceRequest
	if err := l.read(ctx, op, "requests", func(ctx context.Context) error {
		var err error
		rows, err = repo.ListRequests(ctx, l.DB, rf, 0, 0)
		return err
	}); err != nil {
		return nil, 0, err
	}

	views := make([]RequestView, 0, len(rows))
	for _, r := range rows {
		v := RequestView{ServiceRequest: r}
		if f.Near != nil && r.Location.Known() {
			km := haversine(f.Near.Latitude, f.Near.Longitude, *r.Location.Latitude, *r.Location.Longitude) / 1000
			if km > f.Near.RadiusKm {
				continue
			}
			v.DistanceKm = &km
		}
		if sc, ok := scores[r.ID]; ok {
			v.Score = &sc
		}
		views = append(views, v)
	}
	if len(scores) > 0 {
		// rows are newest first; a stable sort keeps that order within a score
		sort.SliceStable(views, func(i, j int) bool { return *views[i].Score > *views[j].Score })
	}

	total := len(views)
	lo := min(pg.Offset(), total)
	hi := min(lo+pg.Size, total)
	return views[lo:hi], total, nil
}

// ListCustomerRequests returns every request of the session customer,
// newest first.
func (l *Lifecycle) ListCustomerRequests(ctx context.Context, s Session) (_ []domain.ServiceRequest, err error) {
	const op = "ListCustomerRequests"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleCustomer); err != nil {
		return nil, err
	}
	var rows []domain.ServiceRequest
	err = l.read(ctx, op, "requests", func(ctx context.Context) error {
		var err error
		rows, err = repo.ListRequests(ctx, l.DB, repo.RequestFilter{CustomerID: s.UserID}, 0, 0)
		return err
	})
	return rows, err
}

// RequestDetail is a request with the offers its owner may see.
type RequestDetail struct {
	Request domain.ServiceRequest `json:"request"`
	Offers  []repo.OfferRow       `json:"offers,omitempty"`
}

// GetRequest returns one request. The owner also receives the offers; a
// provider sees the request while it accepts offers or when one of their
// offers was accepted on it.
func (l *Lifecycle) GetRequest(ctx context.Context, s Session, id string) (_ *RequestDetail, err error) {
	const op = "GetRequest"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID), attribute.String("request.id", id))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	var r *domain.ServiceRequest
	if err := l.read(ctx, op, "request", func(ctx context.Context) error {
		var err error
		r, err = repo.GetRequest(ctx, l.DB, id)
		return err
	}); err != nil {
		return nil, err
	}

	out := &RequestDetail{Request: *r}
	if r.CustomerID == s.UserID {
		out.Offers, err = l.offerRows(ctx, op, id)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	if r.Status.AcceptsOffers() {
		return out, nil
	}
	won, err := repo.WonOffer(ctx, l.DB, id)
	if err == nil && won.ProviderID == s.UserID {
		return out, nil
	}
	if err != nil && !repo.IsNotFound(err) {
		return nil, storeErr(op, "offer", err)
	}
	return nil, forbidden(op, "request is not visible to this user")
}
