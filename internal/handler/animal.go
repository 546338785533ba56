package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/service"
)

// AnimalHandler serves /animals.  Every route runs behind JWTAuth.
type AnimalHandler struct {
	base
	svc *service.AnimalService
	now func() time.Time
}

// NewAnimalHandler builds an AnimalHandler with the per-request timeout.
func NewAnimalHandler(svc *service.AnimalService, timeout time.Duration, logger *slog.Logger) *AnimalHandler {
	return &AnimalHandler{base: newBase(timeout, logger), svc: svc, now: time.Now}
}

type animalResp struct {
	ID        uint64    `json:"id"`
	Number    string    `json:"number"`
	Type      string    `json:"type"`
	Age       string    `json:"age"`
	AgeYears  int       `json:"age_years"`
	Status    string    `json:"status"`
	Color     string    `json:"status_color"`
	Gender    string    `json:"gender"`
	Image     *string   `json:"image"`
	UserID    uint64    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *AnimalHandler) toResp(a model.Animal) animalResp {
	r := animalResp{
		ID:        a.ID,
		Number:    a.Number,
		Type:      string(a.Type),
		Age:       a.BirthDate.Format(model.DateLayout),
		AgeYears:  a.AgeAt(h.now()),
		Status:    string(a.Status),
		Color:     a.Status.Color(),
		Gender:    string(a.Gender),
		UserID:    a.OwnerID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Image != "" {
		img := a.Image
		r.Image = &img
	}
	return r
}

type statsResp struct {
	Total    int                      `json:"total"`
	ByType   map[model.AnimalType]int `json:"by_type"`
	ByStatus map[model.Status]int     `json:"by_status"`
}

// List: GET /animals?type=&status=&gender=&search=
func (h *AnimalHandler) List(c echo.Context) error {
	f := model.AnimalFilter{
		Type:   c.QueryParam("type"),
		Status: c.QueryParam("status"),
		Gender: c.QueryParam("gender"),
		Search: c.QueryParam("search"),
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	list, err := h.svc.List(ctx, caller(c).ID, f)
	if err != nil {
		return h.failErr(c, err, "Animal not found")
	}
	out := make([]animalResp, 0, len(list))
	for _, a := range list {
		out = append(out, h.toResp(a))
	}
	return c.JSON(http.StatusOK, out)
}

// Stats: GET /animals/stats
func (h *AnimalHandler) Stats(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	st, err := h.svc.Stats(ctx, caller(c).ID)
	if err != nil {
		return h.failErr(c, err, "Animal not found")
	}
	return c.JSON(http.StatusOK, statsResp{Total: st.Total, ByType: st.ByType, ByStatus: st.ByStatus})
}

// Get: GET /animals/:id
func (h *AnimalHandler) Get(c echo.Context) error {
	id, ok := animalID(c)
	if !ok {
		return fail(c, http.StatusNotFound, "Animal not found")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	a, err := h.svc.Get(ctx, caller(c).ID, id)
	if err != nil {
		return h.failErr(c, err, "Animal not found")
	}
	return c.JSON(http.StatusOK, h.toResp(*a))
}

// Create: POST /animals (multipart: number, type, age, status, gender, image?)
func (h *AnimalHandler) Create(c echo.Context) error {
	in, err := readAnimalForm(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Invalid form data")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	a, err := h.svc.Create(ctx, caller(c).ID, in)
	if err != nil {
		return h.failErr(c, err, "Animal not found")
	}
	return c.JSON(http.StatusCreated, h.toResp(*a))
}

// Update: PUT /animals/:id (multipart, any subset of the create fields)
func (h *AnimalHandler) Update(c echo.Context) error {
	id, ok := animalID(c)
	if !ok {
		return fail(c, http.StatusNotFound, "Animal not found")
	}
	in, err := readAnimalForm(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Invalid form data")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	a, err := h.svc.Update(ctx, caller(c).ID, id, in)
	if err != nil {
		return h.failErr(c, err, "Animal not found")
	}
	return c.JSON(http.StatusOK, h.toResp(*a))
}

// Delete: DELETE /animals/:id
func (h *AnimalHandler) Delete(c echo.Context) error {
	id, ok := animalID(c)
	if !ok {
		return fail(c, http.StatusNotFound, "Animal not found")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.svc.Delete(ctx, caller(c).ID, id); err != nil {
		return h.failErr(c, err, "Animal not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Animal deleted successfully"})
}

// animalID parses :id.  A malformed id cannot name an existing record, so
// callers answer it like any other unknown id.
func animalID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// readAnimalForm collects the submitted fields, keeping absent ones nil so
// updates can tell "not sent" from "sent".
func readAnimalForm(c echo.Context) (service.AnimalInput, error) {
	var in service.AnimalInput
	if _, err := c.FormParams(); err != nil {
		return in, err
	}
	// PostForm holds body fields only; query parameters never count as
	// submitted values.
	form := c.Request().PostForm
	field := func(name string) *string {
		if v, ok := form[name]; ok && len(v) > 0 {
			s := v[0]
			return &s
		}
		return nil
	}
	in.Number = field("number")
	in.Type = field("type")
	in.Age = field("age")
	in.Status = field("status")
	in.Gender = field("gender")

	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		in.Image = fh
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return in, err
	}
	return in, nil
}
