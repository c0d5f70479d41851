package pagination

import (
	"net/http"
	"strconv"

	"github.com/medassist/api/internal/domain"
)

// FromRequest parses page/size query parameters, applying the standard
// defaults and bounds. Unparseable values fall back to defaults.
func FromRequest(r *http.Request) domain.Pagination {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("size"))
	return domain.Pagination{Page: page, Size: size}.Normalise()
}
