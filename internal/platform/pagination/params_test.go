package pagination

import (
	"net/http/httptest"
	"testing"
)

func TestFromRequestDefaultsAndClamps(t *testing.T) {
	cases := []struct {
		url  string
		page int
		size int
	}{
		{"/orders", 1, 20},
		{"/orders?page=3&size=50", 3, 50},
		{"/orders?page=0&size=0", 1, 20},
		{"/orders?page=abc&size=xyz", 1, 20},
		{"/orders?page=2&size=9999", 2, 100},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", tc.url, nil)
		p := FromRequest(r)
		if p.Page != tc.page || p.Size != tc.size {
			t.Errorf("%s: got page=%d size=%d, want page=%d size=%d", tc.url, p.Page, p.Size, tc.page, tc.size)
		}
	}
}
