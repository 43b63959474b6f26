package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params are the page window requested by a client.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// FromRequest reads ?page= and ?per_page=, ignoring invalid values and
// clamping per_page to MaxPerPage.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	return New(positiveInt(q.Get("page"), 1), positiveInt(q.Get("per_page"), DefaultPerPage))
}

// New builds Params from raw values, applying the same clamping.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

func positiveInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
