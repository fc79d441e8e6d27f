// Service request HTTP handlers.
//
//   - POST /requests            (multipart/form-data or JSON with base64 images)
//   - GET  /requests/open       (provider feed: filter, search, paginate)
//   - GET  /requests/mine       (the customer's own requests)
//   - GET  /requests/{id}
//
// Idempotency:
// POST /requests honors Idempotency-Key; a replay returns the request created
// by the first call and sets `Idempotency-Replayed: true`.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/services"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

//
// DTOs
//

// ListRequestsResponse wraps a page of open requests.
type ListRequestsResponse struct {
	Requests   []services.RequestView `json:"requests"`
	Pagination Pagination             `json:"pagination"`
}

// MyRequestsResponse lists the caller's requests.
type MyRequestsResponse struct {
	Requests []domain.ServiceRequest `json:"requests"`
}

//
// Helpers
//

// bodyError is a request body that could not be read at all. It answers
// 413 when the body limit was hit and 400 otherwise.
type bodyError struct {
	msg      string
	tooLarge bool
}

func (e *bodyError) Error() string { return e.msg }

func badBody(err error, msg string) *bodyError {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &bodyError{msg: "request body too large", tooLarge: true}
	}
	return &bodyError{msg: msg}
}

// bindCreateRequest reads the create payload from either encoding.
func bindCreateRequest(c *gin.Context) (services.CreateRequestInput, *bodyError) {
	var in services.CreateRequestInput
	if c.ContentType() != "multipart/form-data" {
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, badBody(err, "invalid JSON body")
		}
		return in, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return in, badBody(err, "invalid multipart body")
	}
	in.Category = c.PostForm("category")
	in.Title = c.PostForm("title")
	in.Description = c.PostForm("description")
	if d := strings.TrimSpace(c.PostForm("details")); d != "" {
		in.Details = json.RawMessage(d)
	}

	lat, latErr := utils.OptionalFloat(c.PostForm("latitude"))
	lng, lngErr := utils.OptionalFloat(c.PostForm("longitude"))
	if latErr != nil || lngErr != nil {
		return in, &bodyError{msg: "latitude and longitude must be numbers"}
	}
	if addr := c.PostForm("address"); lat != nil || lng != nil || addr != "" {
		in.Location = &services.LocationInput{Latitude: lat, Longitude: lng, Address: addr}
	}

	for _, fh := range form.File["images"] {
		img, err := readImage(fh)
		if err != nil {
			return in, badBody(err, fmt.Sprintf("cannot read image %q", fh.Filename))
		}
		in.Images = append(in.Images, img)
	}
	return in, nil
}

func readImage(fh *multipart.FileHeader) (services.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return services.Image{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return services.Image{}, err
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return services.Image{Data: data, ContentType: ct}, nil
}

//
// Handlers
//

// CreateRequest godoc
// @ID          createRequest
// @Summary     Post a service request
// @Description Customers post a request with optional photos. Multipart clients send fields plus repeated "images" files; JSON clients send images as base64 "data" with a "content_type". All photos are stored before the request is created.
// @Tags        Requests
// @Accept      json,mpfd
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                       false  "Idempotency key for safe retries"
// @Param       body             body      services.CreateRequestInput  false  "JSON payload"
// @Param       category         formData  string                       false  "Category"
// @Param       title            formData  string                       false  "Title"
// @Param       description      formData  string                       false  "Description"
// @Param       details          formData  string                       false  "Category details as JSON"
// @Param       latitude         formData  number                       false  "Latitude"
// @Param       longitude        formData  number                       false  "Longitude"
// @Param       address          formData  string                       false  "Address"
// @Param       images           formData  file                         false  "Photos (repeatable)"
// @Success     201  {object}  domain.ServiceRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Customers only"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Failure     503  {object}  handlers.ErrorResponse  "Media store unavailable"
// @Router      /requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	if h.replay(c, s, repo.Requests) {
		return
	}
	in, berr := bindCreateRequest(c)
	if berr != nil {
		status := http.StatusBadRequest
		if berr.tooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		fail(c, status, ErrCodeBadRequest, berr.msg)
		return
	}
	r, err := h.life.CreateRequest(c.Request.Context(), s, in)
	if err != nil {
		failFromErr(c, err)
		return
	}
	h.remember(c, s, r.ID, http.StatusCreated)
	c.Header("Location", c.FullPath()+"/"+r.ID)
	ok(c, http.StatusCreated, r)
}

// ListOpenRequests godoc
// @ID          listOpenRequests
// @Summary     Browse requests that accept offers
// @Description Newest first, or by relevance when q is set. lat/lng/radius_km keep requests within the circle; requests without a location are kept.
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       category   query  string  false  "Category"
// @Param       q          query  string  false  "Free-text search"
// @Param       lat        query  number  false  "Latitude"
// @Param       lng        query  number  false  "Longitude"
// @Param       radius_km  query  number  false  "Radius in km (requires lat and lng)"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListRequestsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /requests/open [get]
func (h *Handlers) ListOpenRequests(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	pg := pageQuery(c)
	f := services.OpenRequestsFilter{
		Category: c.Query("category"),
		Query:    c.Query("q"),
		Page:     pg.Number,
		PageSize: pg.Size,
	}
	lat, err1 := utils.OptionalFloat(c.Query("lat"))
	lng, err2 := utils.OptionalFloat(c.Query("lng"))
	radius, err3 := utils.OptionalFloat(c.Query("radius_km"))
	given := 0
	for _, v := range []*float64{lat, lng, radius} {
		if v != nil {
			given++
		}
	}
	if err1 != nil || err2 != nil || err3 != nil || (given != 0 && given != 3) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat, lng and radius_km must be numbers given together")
		return
	}
	if given == 3 {
		f.Near = &services.Near{Latitude: *lat, Longitude: *lng, RadiusKm: *radius}
	}

	items, total, err := h.life.ListOpenRequests(c.Request.Context(), s, f)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{
		Requests:   items,
		Pagination: newPagination(pg.Number, pg.Size, int64(total)),
	})
}

// ListMyRequests godoc
// @ID          listMyRequests
// @Summary     The caller's requests
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MyRequestsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Customers only"
// @Router      /requests/mine [get]
func (h *Handlers) ListMyRequests(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	items, err := h.life.ListCustomerRequests(c.Request.Context(), s)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if items == nil {
		items = []domain.ServiceRequest{}
	}
	ok(c, http.StatusOK, MyRequestsResponse{Requests: items})
}

// GetRequest godoc
// @ID          getRequest
// @Summary     Request detail
// @Description The owner also receives the offers.
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Request ID"  format(uuid)
// @Success     200  {object}  services.RequestDetail
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /requests/{id} [get]
func (h *Handlers) GetRequest(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	d, err := h.life.GetRequest(c.Request.Context(), s, c.Param("id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}
